package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType indicates which part of a provider configuration caused a failure.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeCanceled ErrorType = "canceled"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Provider   string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

type classification struct {
	errType   ErrorType
	message   string
	retryable bool
	match     func(raw, lower string) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Evaluated in order; the first match wins.
var classifications = []classification{
	{ErrorTypeAuth, "authentication failed", false, func(raw, lower string) bool {
		return containsAny(raw, "401", "403") || containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key", "api key not valid", "permission denied")
	}},
	{ErrorTypeModel, "model not found", false, func(_, lower string) bool {
		return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist")
	}},
	{ErrorTypeEndpoint, "endpoint not found", false, func(raw, _ string) bool {
		return strings.Contains(raw, "404")
	}},
	{ErrorTypeEndpoint, "connection failed", true, func(_, lower string) bool {
		return containsAny(lower, "connection refused", "no such host", "connection reset")
	}},
	{ErrorTypeEndpoint, "request timeout", true, func(_, lower string) bool {
		return containsAny(lower, "timeout", "timed out")
	}},
	{ErrorTypeUnknown, "rate limited", true, func(raw, lower string) bool {
		return strings.Contains(raw, "429") || containsAny(lower, "rate limit", "overloaded", "resource exhausted")
	}},
	{ErrorTypeEndpoint, "GPU error", true, func(_, lower string) bool {
		return containsAny(lower, "cuda error", "gpu error", "out of memory")
	}},
	{ErrorTypeEndpoint, "server error", true, func(raw, _ string) bool {
		return containsAny(raw, "500", "502", "503", "504", "529")
	}},
}

var statusCodes = []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529}

// ClassifyError turns an adapter error into an *Error tagged with the provider name.
// An error that is already classified is returned unchanged.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	// A caller's deadline expiring is a provider failure for routing purposes
	// but never worth retrying against the same backend.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeCanceled, Message: "request canceled", Cause: err, Provider: provider}
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	statusCode := 0
	for _, code := range statusCodes {
		if strings.Contains(raw, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	out := &Error{Type: ErrorTypeUnknown, Message: "provider error", Cause: err, StatusCode: statusCode, Provider: provider}
	for _, c := range classifications {
		if c.match(raw, lower) {
			out.Type = c.errType
			out.Message = c.message
			out.Retryable = c.retryable
			break
		}
	}
	return out
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
