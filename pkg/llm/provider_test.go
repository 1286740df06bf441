package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

func TestJoinSystemPrompt(t *testing.T) {
	assert.Equal(t, "Be brief.\n\nComposed prompt", JoinSystemPrompt("Be brief.", "Composed prompt"))
	assert.Equal(t, "Be brief.\n\nComposed prompt", JoinSystemPrompt("  Be brief.\n", "Composed prompt"))
	assert.Equal(t, "Composed prompt", JoinSystemPrompt("", "Composed prompt"))
	assert.Equal(t, "Composed prompt", JoinSystemPrompt("   ", "Composed prompt"))
	assert.Equal(t, "Be brief.", JoinSystemPrompt("Be brief.", ""))
}

func TestInfoFromConfig(t *testing.T) {
	cfg := &models.ProviderConfig{
		ID:                 uuid.New(),
		Name:               "ollama-local",
		Kind:               models.ProviderKindOllama,
		Model:              "llama3.1",
		IsLocal:            true,
		CustomInstructions: "Answer in English.",
		Capabilities:       models.ProviderCapabilities{Streaming: true},
	}

	info := InfoFromConfig(cfg)
	assert.Equal(t, cfg.ID, info.ID)
	assert.Equal(t, "ollama-local", info.Name)
	assert.True(t, info.IsLocal)
	assert.Equal(t, "Answer in English.", info.CustomInstructions)
	assert.True(t, info.Capabilities.Streaming)
}

func TestTestConnection(t *testing.T) {
	ok := NewMockProvider("ok", false)
	res := TestConnection(context.Background(), ok)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "ok-model")

	failing := NewMockProvider("bad", false)
	failing.GenerateTextFunc = func(context.Context, []Message, string) (*Result, error) {
		return nil, errors.New("status code: 401, Incorrect API key provided: sk-abc...")
	}
	res = TestConnection(context.Background(), failing)
	assert.False(t, res.Success)
	assert.Equal(t, ErrorTypeAuth, res.ErrorType)
	assert.Equal(t, "Invalid API key", res.Message)
	assert.NotContains(t, res.Message, "sk-")

	empty := NewMockProvider("empty", true)
	empty.GenerateTextFunc = func(context.Context, []Message, string) (*Result, error) {
		return &Result{Text: "  "}, nil
	}
	res = TestConnection(context.Background(), empty)
	assert.False(t, res.Success)
	assert.Equal(t, ErrorTypeUnknown, res.ErrorType)
}
