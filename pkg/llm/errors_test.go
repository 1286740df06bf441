package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		retryable  bool
		statusCode int
	}{
		{"auth 401", errors.New("error, status code: 401, message: Incorrect API key"), ErrorTypeAuth, false, 401},
		{"anthropic invalid key", errors.New("invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"model missing", errors.New(`model "llama9" not found, try pulling it first`), ErrorTypeModel, false, 0},
		{"endpoint 404", errors.New("status code: 404"), ErrorTypeEndpoint, false, 404},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), ErrorTypeEndpoint, true, 0},
		{"timeout", errors.New("net/http: request timeout"), ErrorTypeEndpoint, true, 0},
		{"rate limited", errors.New("status code: 429, rate limit reached"), ErrorTypeUnknown, true, 429},
		{"anthropic overloaded", errors.New("overloaded_error: Overloaded"), ErrorTypeUnknown, true, 0},
		{"server error", errors.New("status code: 503"), ErrorTypeEndpoint, true, 503},
		{"cuda", errors.New("CUDA error: out of memory"), ErrorTypeEndpoint, true, 0},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError("primary", tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.statusCode, got.StatusCode)
			assert.Equal(t, "primary", got.Provider)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError("p", nil))
}

func TestClassifyError_AlreadyClassified(t *testing.T) {
	original := NewError(ErrorTypeModel, "model not found", false, errors.New("x"))
	wrapped := fmt.Errorf("generate: %w", original)
	assert.Same(t, original, ClassifyError("p", wrapped))
}

func TestClassifyError_ContextErrorsAreNotRetryable(t *testing.T) {
	got := ClassifyError("p", fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeCanceled, got.Type)
	assert.False(t, got.Retryable)
	assert.ErrorIs(t, got, context.DeadlineExceeded)
}

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
		Provider:   "openai-main",
		Cause:      errors.New("upstream"),
	}
	assert.Equal(t, "endpoint provider=openai-main HTTP 503 server error: upstream", err.Error())
	assert.True(t, NewError(ErrorTypeEndpoint, "x", true, nil).IsRetryable())
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeAuth, GetErrorType(fmt.Errorf("w: %w", NewError(ErrorTypeAuth, "x", false, nil))))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}
