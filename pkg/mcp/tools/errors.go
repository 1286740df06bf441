package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// Errors are returned as successful tool results with IsError set so the
// calling agent sees them instead of a transport failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for failures the agent can act on (bad parameters, unknown ids).
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorResult turns a service failure into a tool result. The cause is
// logged; the agent only ever sees the sentinel text.
func serviceErrorResult(logger *zap.Logger, tool string, err error) *mcp.CallToolResult {
	logger.Error("Tool call failed",
		zap.String("tool", tool),
		zap.String("error", logging.SanitizeError(err)))

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", apperrors.ErrNotFound.Error())
	case errors.Is(err, apperrors.ErrNotAViolation):
		return NewErrorResult("not_a_violation", apperrors.ErrNotAViolation.Error())
	case errors.Is(err, apperrors.ErrRequiresReview):
		return NewErrorResult("requires_review", apperrors.ErrRequiresReview.Error())
	case errors.Is(err, apperrors.ErrNoLocalProvider):
		return NewErrorResult("no_local_provider", apperrors.ErrNoLocalProvider.Error())
	default:
		return NewErrorResult("unavailable", apperrors.PublicMessage(err))
	}
}
