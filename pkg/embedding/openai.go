package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/retry"
)

// openAIEmbedder talks to any endpoint implementing POST /embeddings.
type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dims      int
	batchSize int
	retryCfg  *retry.Config
	logger    *zap.Logger
}

var _ Embedder = (*openAIEmbedder)(nil)

func newOpenAIEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) *openAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.Named("embedding"),
	}
}

func (e *openAIEmbedder) Name() string {
	return "openai:" + e.model
}

func (e *openAIEmbedder) Dimensions() int {
	return e.dims
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := embedInBatches(ctx, texts, e.batchSize, e.retryCfg, e.embedOnce)
	if err != nil {
		e.logger.Error("Embedding request failed",
			zap.String("model", e.model),
			zap.Int("inputs", len(texts)),
			zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

func (e *openAIEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	// Only the text-embedding-3 family accepts a requested size.
	if e.dims > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classify(e.Name(), err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", d.Index)
		}
		vectors[i] = d.Embedding
	}
	if err := checkDimensions(vectors, e.dims); err != nil {
		return nil, err
	}
	return vectors, nil
}
