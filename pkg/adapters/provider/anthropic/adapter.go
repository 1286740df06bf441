// Package anthropic adapts the Anthropic Messages API to llm.Provider.
package anthropic

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

func init() {
	provider.Register(provider.Registration{
		Info: provider.AdapterInfo{
			Kind:        models.ProviderKindAnthropic,
			DisplayName: "Anthropic",
			Description: "Claude models through the Anthropic Messages API",
		},
		Factory: func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error) {
			return New(cfg, apiKey, logger)
		},
	})
}

// Adapter calls the Messages API through go-anthropic.
type Adapter struct {
	info   llm.ProviderInfo
	client *anthropic.Client
	logger *zap.Logger
}

var _ llm.Provider = (*Adapter)(nil)

// New creates an adapter for cfg. An API key is always required.
func New(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: provider %q requires an API key", apperrors.ErrInvalidProviderConfig, cfg.Name)
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	return &Adapter{
		info:   llm.InfoFromConfig(cfg),
		client: anthropic.NewClient(apiKey, opts...),
		logger: logger.Named("provider").With(zap.String("provider", cfg.Name)),
	}, nil
}

func (a *Adapter) Info() llm.ProviderInfo {
	return a.info
}

func (a *Adapter) GenerateText(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
	start := time.Now()

	resp, err := a.client.CreateMessages(ctx, a.request(messages, systemPrompt))
	if err != nil {
		return nil, llm.ClassifyError(a.info.Name, err)
	}

	a.logger.Debug("Message finished",
		zap.String("model", a.info.Model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &llm.Result{
		Text: extractText(resp),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Model:    a.info.Model,
		Provider: a.info.Name,
	}, nil
}

// StreamText bridges the callback-driven stream API to a pull-based
// llm.Stream. The request runs on its own goroutine, which exits when the
// response ends or the stream is closed.
func (a *Adapter) StreamText(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	deltas := make(chan string)
	done := make(chan error, 1)

	go func() {
		defer close(deltas)
		_, err := a.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: a.request(messages, systemPrompt),
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text == nil {
					return
				}
				select {
				case deltas <- *data.Delta.Text:
				case <-ctx.Done():
				}
			},
		})
		done <- err
	}()

	recv := func() (string, error) {
		if delta, ok := <-deltas; ok {
			return delta, nil
		}
		if err := <-done; err != nil {
			return "", llm.ClassifyError(a.info.Name, err)
		}
		return "", io.EOF
	}

	s, err := llm.OpenStream(recv, func() error {
		cancel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Provider = a.info.Name
	s.Model = a.info.Model
	return s, nil
}

func (a *Adapter) request(messages []llm.Message, systemPrompt string) anthropic.MessagesRequest {
	msgs := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantTextMessage(m.Content))
			continue
		}
		msgs = append(msgs, anthropic.NewUserTextMessage(m.Content))
	}

	return anthropic.MessagesRequest{
		Model:     anthropic.Model(a.info.Model),
		System:    systemPrompt,
		Messages:  msgs,
		MaxTokens: provider.DefaultMaxTokens,
	}
}

func extractText(resp anthropic.MessagesResponse) string {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text += *block.Text
		}
	}
	return text
}
