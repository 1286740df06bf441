package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/retry"
)

// Task types tell the GenAI API which side of a retrieval pair a text is.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// genAIEmbedder uses the Google GenAI embedding API.
// Embed treats its input as a query; EmbedBatch treats inputs as documents.
type genAIEmbedder struct {
	client    *genai.Client
	model     string
	dims      int
	batchSize int
	retryCfg  *retry.Config
	logger    *zap.Logger
}

var _ Embedder = (*genAIEmbedder)(nil)

func newGenAIEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (*genAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding provider requires EMBEDDING_API_KEY")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &genAIEmbedder{
		client:    client,
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.Named("embedding"),
	}, nil
}

func (e *genAIEmbedder) Name() string {
	return "gemini:" + e.model
}

func (e *genAIEmbedder) Dimensions() int {
	return e.dims
}

func (e *genAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := embedInBatches(ctx, []string{text}, 1, e.retryCfg, e.batchFor(taskRetrievalQuery))
	if err != nil {
		e.logger.Error("Query embedding failed", zap.String("model", e.model), zap.Error(err))
		return nil, err
	}
	return vectors[0], nil
}

func (e *genAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := embedInBatches(ctx, texts, e.batchSize, e.retryCfg, e.batchFor(taskRetrievalDocument))
	if err != nil {
		e.logger.Error("Document embedding failed",
			zap.String("model", e.model),
			zap.Int("inputs", len(texts)),
			zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

func (e *genAIEmbedder) batchFor(taskType string) batchFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		contents := make([]*genai.Content, len(texts))
		for i, t := range texts {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}

		embedCfg := &genai.EmbedContentConfig{TaskType: taskType}
		if e.dims > 0 {
			dims := int32(e.dims)
			embedCfg.OutputDimensionality = &dims
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, embedCfg)
		if err != nil {
			return nil, classify(e.Name(), err)
		}

		vectors := make([][]float32, len(resp.Embeddings))
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding at index %d", i)
			}
			vectors[i] = emb.Values
		}
		if err := checkDimensions(vectors, e.dims); err != nil {
			return nil, err
		}
		return vectors, nil
	}
}
