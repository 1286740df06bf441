package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model response contains no JSON value.
var ErrNoJSON = errors.New("no valid JSON found in response")

// thinkTagPattern matches reasoning blocks some local models emit before answering.
var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ExtractJSON returns the first complete JSON object or array in a model
// response, skipping <think> blocks, markdown fences and surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] != '{' && cleaned[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(cleaned[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		return string(raw), nil
	}

	return "", ErrNoJSON
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
