// Package embedding generates vectors for knowledge search.
//
// Two backends are supported: any OpenAI-compatible embeddings endpoint
// (OpenAI itself, or a local server such as Ollama or LM Studio) and the
// Google GenAI embedding API. Batches are split into calls of at most
// config.MaxEmbeddingBatchSize inputs and transient failures are retried.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/retry"
)

// Embedder turns text into vectors.
type Embedder interface {
	// Embed returns the vector of a single search query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per document text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every returned vector.
	Dimensions() int

	// Name identifies the backend and model for logs.
	Name() string
}

// New creates the embedder selected by cfg.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	cfg.BaseURL = config.ResolveURLForDocker(cfg.BaseURL)

	switch cfg.Provider {
	case config.EmbeddingProviderOpenAI:
		return newOpenAIEmbedder(cfg, logger), nil
	case config.EmbeddingProviderGemini:
		return newGenAIEmbedder(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// batchFunc embeds one batch that already fits the backend limit.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedInBatches calls fn for consecutive slices of at most size texts and
// concatenates the results. Each call is retried on transient failures.
func embedInBatches(ctx context.Context, texts []string, size int, retryCfg *retry.Config, fn batchFunc) ([][]float32, error) {
	if size <= 0 || size > config.MaxEmbeddingBatchSize {
		size = config.MaxEmbeddingBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch := texts[start:end]

		vectors, err := retry.DoIfRetryableWithResult(ctx, retryCfg, func() ([][]float32, error) {
			return fn(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: expected %d vectors, got %d", start, end, len(batch), len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// checkDimensions rejects vectors whose length differs from the configured
// dimensionality; a mismatched vector can never match anything in the store.
func checkDimensions(vectors [][]float32, dims int) error {
	if dims <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), dims)
		}
	}
	return nil
}

// classify tags backend errors so retry can tell transient from permanent.
func classify(name string, err error) error {
	if err == nil {
		return nil
	}
	return llm.ClassifyError(name, err)
}
