package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// probePrompt is a trivial generation every backend can answer.
const probePrompt = "Say 'ok' and nothing else."

// DefaultProbeTimeout bounds a connection test.
const DefaultProbeTimeout = 30 * time.Second

// TestResult contains connection test results.
type TestResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// TestConnection issues a trivial generation against p and reports whether it
// succeeded. It never returns an error; failures are described in the result.
func TestConnection(ctx context.Context, p Provider) *TestResult {
	info := p.Info()

	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.GenerateText(ctx, []Message{UserMessage(probePrompt)}, "")
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		classified := ClassifyError(info.Name, err)
		return &TestResult{
			Message:        probeMessage(classified),
			ErrorType:      classified.Type,
			ResponseTimeMs: elapsed,
		}
	}

	if res == nil || strings.TrimSpace(res.Text) == "" {
		return &TestResult{Message: "Provider returned no response", ErrorType: ErrorTypeUnknown, ResponseTimeMs: elapsed}
	}

	return &TestResult{
		Success:        true,
		Message:        fmt.Sprintf("Connection successful (model: %s, %dms)", info.Model, elapsed),
		ResponseTimeMs: elapsed,
	}
}

// probeMessage is an operator-facing description that never echoes the raw
// cause, which can contain request headers.
func probeMessage(err *Error) string {
	switch err.Type {
	case ErrorTypeAuth:
		return "Invalid API key"
	case ErrorTypeModel:
		return "Model not found"
	case ErrorTypeCanceled:
		return "Connection test timed out"
	case ErrorTypeEndpoint:
		switch err.Message {
		case "endpoint not found":
			return "Endpoint not found - check base URL"
		case "connection failed":
			return "Connection failed - check base URL"
		case "request timeout":
			return "Connection timed out"
		}
		return "Provider returned a server error"
	}
	return "Provider request failed"
}
