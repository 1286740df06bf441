package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderKind identifies the backend adapter used for a ProviderConfig.
type ProviderKind string

const (
	ProviderKindOpenAI    ProviderKind = "openai"
	ProviderKindAnthropic ProviderKind = "anthropic"
	ProviderKindGemini    ProviderKind = "gemini"
	ProviderKindOllama    ProviderKind = "ollama"
)

// ProviderCapabilities declares what a backend supports.
type ProviderCapabilities struct {
	Vision    bool `json:"vision" yaml:"vision"`
	Files     bool `json:"files" yaml:"files"`
	Streaming bool `json:"streaming" yaml:"streaming"`
}

// ProviderConfig is one configured AI backend.
// Stored in reasoner_provider_configs; the credential is kept encrypted at rest.
type ProviderConfig struct {
	ID                 uuid.UUID            `json:"id"`
	Name               string               `json:"name"`
	Kind               ProviderKind         `json:"kind"`
	Enabled            bool                 `json:"enabled"`
	Priority           int                  `json:"priority"` // lower = preferred
	IsLocal            bool                 `json:"is_local"` // on-device / self-hosted
	BaseURL            string               `json:"base_url,omitempty"`
	Model              string               `json:"model"`
	CustomInstructions string               `json:"custom_instructions,omitempty"`
	CredentialEnc      string               `json:"-"` // hex(nonce):hex(ciphertext):hex(tag), empty for local providers
	Capabilities       ProviderCapabilities `json:"capabilities"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// HasCredential reports whether an encrypted credential is stored.
func (p *ProviderConfig) HasCredential() bool {
	return p.CredentialEnc != ""
}

// Validate checks the operator-supplied fields. apiKey is the plaintext
// credential about to be stored (empty when none is supplied).
func (p *ProviderConfig) Validate(apiKey string) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if p.IsLocal && apiKey != "" {
		return fmt.Errorf("local provider %q must not carry network credentials", p.Name)
	}
	if !p.IsLocal && apiKey == "" && !p.HasCredential() {
		return fmt.Errorf("networked provider %q requires a credential", p.Name)
	}
	return nil
}
