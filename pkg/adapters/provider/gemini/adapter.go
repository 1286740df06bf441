// Package gemini adapts the Google GenAI API to llm.Provider.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

func init() {
	provider.Register(provider.Registration{
		Info: provider.AdapterInfo{
			Kind:        models.ProviderKindGemini,
			DisplayName: "Google Gemini",
			Description: "Gemini models through the Google GenAI API",
		},
		Factory: func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error) {
			return New(context.Background(), cfg, apiKey, logger)
		},
	})
}

// Adapter calls GenerateContent through the genai SDK.
type Adapter struct {
	info   llm.ProviderInfo
	client *genai.Client
	logger *zap.Logger
}

var _ llm.Provider = (*Adapter)(nil)

// New creates an adapter for cfg. An API key is always required.
func New(ctx context.Context, cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: provider %q requires an API key", apperrors.ErrInvalidProviderConfig, cfg.Name)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Adapter{
		info:   llm.InfoFromConfig(cfg),
		client: client,
		logger: logger.Named("provider").With(zap.String("provider", cfg.Name)),
	}, nil
}

func (a *Adapter) Info() llm.ProviderInfo {
	return a.info
}

func (a *Adapter) GenerateText(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
	start := time.Now()

	resp, err := a.client.Models.GenerateContent(ctx, a.info.Model, toContents(messages), generateConfig(systemPrompt))
	if err != nil {
		return nil, llm.ClassifyError(a.info.Name, err)
	}

	usage := usageOf(resp)
	a.logger.Debug("Content generated",
		zap.String("model", a.info.Model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &llm.Result{
		Text:     resp.Text(),
		Usage:    usage,
		Model:    a.info.Model,
		Provider: a.info.Name,
	}, nil
}

// StreamText pulls chunks from the SDK's iterator one at a time.
func (a *Adapter) StreamText(ctx context.Context, messages []llm.Message, systemPrompt string) (*llm.Stream, error) {
	seq := a.client.Models.GenerateContentStream(ctx, a.info.Model, toContents(messages), generateConfig(systemPrompt))
	next, stop := iter.Pull2(seq)

	recv := func() (string, error) {
		resp, err, ok := next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", llm.ClassifyError(a.info.Name, err)
		}
		return resp.Text(), nil
	}

	s, err := llm.OpenStream(recv, func() error {
		stop()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Provider = a.info.Name
	s.Model = a.info.Model
	return s, nil
}

func toContents(messages []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func generateConfig(systemPrompt string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: provider.DefaultMaxTokens}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return cfg
}

func usageOf(resp *genai.GenerateContentResponse) llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return llm.Usage{}
	}
	md := resp.UsageMetadata
	return llm.Usage{
		PromptTokens:     int(md.PromptTokenCount),
		CompletionTokens: int(md.CandidatesTokenCount),
		TotalTokens:      int(md.TotalTokenCount),
	}
}
