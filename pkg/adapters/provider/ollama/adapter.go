// Package ollama registers the local Ollama runtime as a provider.
// Ollama serves an OpenAI-compatible API under /v1, so the chat plumbing is
// shared with the openai adapter; what differs is locality and credentials.
package ollama

import (
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider/openai"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// DefaultBaseURL is where a host-installed Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

func init() {
	provider.Register(provider.Registration{
		Info: provider.AdapterInfo{
			Kind:        models.ProviderKindOllama,
			DisplayName: "Ollama",
			Description: "Self-hosted models served by Ollama; traffic never leaves the deployment",
			Local:       true,
		},
		Factory: func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error) {
			return New(cfg, apiKey, logger)
		},
	})
}

// New creates an Ollama adapter. The provider is always treated as local and
// must not carry a credential.
func New(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (*openai.Adapter, error) {
	if apiKey != "" {
		return nil, fmt.Errorf("%w: local provider %q must not carry network credentials", apperrors.ErrInvalidProviderConfig, cfg.Name)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	info := llm.InfoFromConfig(cfg)
	info.IsLocal = true

	return openai.NewWithClientConfig(info, clientConfig(config.ResolveURLForDocker(baseURL)), logger), nil
}

// clientConfig points go-openai at Ollama's OpenAI-compatible endpoint.
func clientConfig(baseURL string) goopenai.ClientConfig {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	// Ollama ignores the token but go-openai always sends the header.
	cfg := goopenai.DefaultConfig("ollama")
	cfg.BaseURL = baseURL
	return cfg
}
