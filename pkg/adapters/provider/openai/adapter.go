// Package openai adapts OpenAI and OpenAI-compatible chat endpoints to llm.Provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

func init() {
	provider.Register(provider.Registration{
		Info: provider.AdapterInfo{
			Kind:        models.ProviderKindOpenAI,
			DisplayName: "OpenAI",
			Description: "OpenAI chat completions or any OpenAI-compatible endpoint",
		},
		Factory: func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error) {
			return New(cfg, apiKey, logger)
		},
	})
}

// Adapter calls a chat completions endpoint through go-openai.
type Adapter struct {
	info   llm.ProviderInfo
	client *openai.Client
	logger *zap.Logger
}

var _ llm.Provider = (*Adapter)(nil)

// New creates an adapter for cfg. Networked endpoints require apiKey.
func New(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (*Adapter, error) {
	if !cfg.IsLocal && apiKey == "" {
		return nil, fmt.Errorf("%w: provider %q requires an API key", apperrors.ErrInvalidProviderConfig, cfg.Name)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(config.ResolveURLForDocker(cfg.BaseURL), "/")
	}
	return NewWithClientConfig(llm.InfoFromConfig(cfg), clientCfg, logger), nil
}

// NewWithClientConfig creates an adapter from an explicit client configuration.
func NewWithClientConfig(info llm.ProviderInfo, clientCfg openai.ClientConfig, logger *zap.Logger) *Adapter {
	return &Adapter{
		info:   info,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger.Named("provider").With(zap.String("provider", info.Name)),
	}
}

func (a *Adapter) Info() llm.ProviderInfo {
	return a.info
}

func (a *Adapter) GenerateText(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
	start := time.Now()

	resp, err := a.client.CreateChatCompletion(ctx, a.request(messages, systemPrompt))
	if err != nil {
		return nil, llm.ClassifyError(a.info.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewError(llm.ErrorTypeUnknown, "response contained no choices", false, nil)
	}

	a.logger.Debug("Chat completion finished",
		zap.String("model", a.info.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &llm.Result{
		Text: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:    a.info.Model,
		Provider: a.info.Name,
	}, nil
}

func (a *Adapter) StreamText(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Stream, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.request(messages, systemPrompt))
	if err != nil {
		return nil, llm.ClassifyError(a.info.Name, err)
	}

	s := llm.NewStream(func() (string, error) {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", llm.ClassifyError(a.info.Name, err)
		}
		if len(chunk.Choices) == 0 {
			return "", nil
		}
		return chunk.Choices[0].Delta.Content, nil
	}, stream.Close)
	s.Provider = a.info.Name
	s.Model = a.info.Model
	return s, nil
}

func (a *Adapter) request(messages []llm.Message, systemPrompt string) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == llm.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return openai.ChatCompletionRequest{
		Model:     a.info.Model,
		Messages:  msgs,
		MaxTokens: provider.DefaultMaxTokens,
	}
}
