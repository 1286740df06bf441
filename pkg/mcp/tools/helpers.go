package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return trimString(val)
}

// getOptionalBool extracts an optional boolean argument, falling back to defaultVal.
func getOptionalBool(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if val, ok := arguments(req)[key].(bool); ok {
		return val
	}
	return defaultVal
}

// getOptionalUUID parses an optional UUID argument. Absent or empty yields nil.
func getOptionalUUID(req mcp.CallToolRequest, key string) (*uuid.UUID, error) {
	raw := getOptionalString(req, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %q is not a valid UUID", key, raw)
	}
	return &id, nil
}

// requireUUID parses a required UUID argument.
func requireUUID(req mcp.CallToolRequest, key string) (uuid.UUID, error) {
	id, err := getOptionalUUID(req, key)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, fmt.Errorf("required argument %q not found", key)
	}
	return *id, nil
}

// decodeArgument re-decodes a structured argument (object or array) into dst.
func decodeArgument(req mcp.CallToolRequest, key string, dst any) (bool, error) {
	raw, ok := arguments(req)[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return true, nil
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
