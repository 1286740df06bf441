// Package llm defines the uniform contract every AI backend adapter implements,
// plus the shared pieces around it: streams, error classification, JSON
// extraction from model output and connection probing.
package llm

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Usage reports token consumption of one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the outcome of a non-streaming generation.
type Result struct {
	Text     string `json:"text"`
	Usage    Usage  `json:"usage"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// ProviderInfo describes a loaded adapter.
type ProviderInfo struct {
	ID                 uuid.UUID
	Name               string
	Kind               models.ProviderKind
	Model              string
	IsLocal            bool
	CustomInstructions string
	Capabilities       models.ProviderCapabilities
}

// InfoFromConfig copies the descriptive fields of a provider config.
func InfoFromConfig(cfg *models.ProviderConfig) ProviderInfo {
	return ProviderInfo{
		ID:                 cfg.ID,
		Name:               cfg.Name,
		Kind:               cfg.Kind,
		Model:              cfg.Model,
		IsLocal:            cfg.IsLocal,
		CustomInstructions: cfg.CustomInstructions,
		Capabilities:       cfg.Capabilities,
	}
}

// Provider is implemented by every backend adapter.
// Adapters are stateless apart from their client and safe for concurrent use.
type Provider interface {
	Info() ProviderInfo

	// GenerateText runs one completion. systemPrompt may be empty.
	GenerateText(ctx context.Context, messages []Message, systemPrompt string) (*Result, error)

	// StreamText opens a streaming completion. An error is returned only when
	// the stream cannot be opened; failures after that surface via Stream.Err.
	StreamText(ctx context.Context, messages []Message, systemPrompt string) (*Stream, error)
}

// JoinSystemPrompt places a provider's custom instructions ahead of the
// composed system prompt, separated by a blank line.
func JoinSystemPrompt(customInstructions, systemPrompt string) string {
	custom := strings.TrimSpace(customInstructions)
	switch {
	case custom == "":
		return systemPrompt
	case systemPrompt == "":
		return custom
	}
	return custom + "\n\n" + systemPrompt
}
