// Package jsonutil decodes loosely typed values from model output.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleNumber is a JSON number that also accepts a quoted number,
// since models often emit "50" where 50 was asked for. null and "" decode to 0.
type FlexibleNumber float64

func (n *FlexibleNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}

	if data[0] != '"' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("expected a number, got %s", data)
		}
		*n = FlexibleNumber(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %q", s)
	}
	*n = FlexibleNumber(f)
	return nil
}

// Float64 returns n as a float64.
func (n FlexibleNumber) Float64() float64 {
	return float64(n)
}
