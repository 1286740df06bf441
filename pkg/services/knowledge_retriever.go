package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/embedding"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/prompts"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/retry"
)

// indexConcurrency bounds parallel upserts while indexing.
const indexConcurrency = 4

// defaultUpsertRetry retries chunk writes that fail on transient store errors
// (dropped connections, deadlocks, a busy SQLite file).
func defaultUpsertRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// KnowledgeRetriever finds the knowledge relevant to a request.
type KnowledgeRetriever interface {
	// Search embeds query and returns up to top-K chunks matching filter whose
	// similarity is at least threshold, most similar first. Failures are returned.
	Search(ctx context.Context, query string, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error)

	// SearchGlobal searches organization-wide knowledge with the wide-net threshold.
	// Failures degrade to an empty result.
	SearchGlobal(ctx context.Context, query string) []models.KnowledgeChunk

	// SearchSubject searches one subject's knowledge with the stricter threshold.
	// Failures degrade to an empty result.
	SearchSubject(ctx context.Context, query string, subjectID uuid.UUID) []models.KnowledgeChunk

	// Retrieve always searches the global scope and, when subjectID is set, the
	// subject scope too. Combined is ordered by authority, then similarity.
	Retrieve(ctx context.Context, query string, subjectID *uuid.UUID) *models.RetrievalResult

	// Index embeds and stores pre-chunked fragments.
	Index(ctx context.Context, chunks []*models.KnowledgeChunk) error

	// DeleteDocument removes every chunk of a document.
	DeleteDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
}

type knowledgeRetriever struct {
	store       repositories.KnowledgeStore
	embedder    embedding.Embedder
	cfg         config.RetrievalConfig
	upsertRetry *retry.Config
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewKnowledgeRetriever creates a new KnowledgeRetriever.
func NewKnowledgeRetriever(
	store repositories.KnowledgeStore,
	embedder embedding.Embedder,
	cfg config.RetrievalConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) KnowledgeRetriever {
	return &knowledgeRetriever{
		store:       store,
		embedder:    embedder,
		cfg:         cfg,
		upsertRetry: defaultUpsertRetry(),
		metrics:     m,
		logger:      logger.Named("knowledge-retriever"),
	}
}

var _ KnowledgeRetriever = (*knowledgeRetriever)(nil)

func (r *knowledgeRetriever) Search(ctx context.Context, query string, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := r.store.Query(ctx, vec, r.cfg.TopK, filter, threshold)
	if err != nil {
		return nil, fmt.Errorf("query knowledge store: %w", err)
	}
	return chunks, nil
}

func (r *knowledgeRetriever) SearchGlobal(ctx context.Context, query string) []models.KnowledgeChunk {
	return r.searchOrDegrade(ctx, query, models.KnowledgeFilter{Scope: models.ScopeGlobal}, r.cfg.GlobalThreshold)
}

func (r *knowledgeRetriever) SearchSubject(ctx context.Context, query string, subjectID uuid.UUID) []models.KnowledgeChunk {
	return r.searchOrDegrade(ctx, query, models.KnowledgeFilter{Scope: models.ScopeSubject, SubjectID: &subjectID}, r.cfg.SubjectThreshold)
}

// searchOrDegrade never fails: reasoning proceeds with less context instead.
func (r *knowledgeRetriever) searchOrDegrade(ctx context.Context, query string, filter models.KnowledgeFilter, threshold float64) []models.KnowledgeChunk {
	chunks, err := r.Search(ctx, query, filter, threshold)
	if err != nil {
		r.logger.Warn("Knowledge search failed, continuing without context",
			zap.String("scope", string(filter.Scope)),
			zap.String("error", logging.SanitizeError(err)))
		r.metrics.RetrievalDegraded(string(filter.Scope))
		return nil
	}
	return chunks
}

func (r *knowledgeRetriever) Retrieve(ctx context.Context, query string, subjectID *uuid.UUID) *models.RetrievalResult {
	result := &models.RetrievalResult{}

	// Both searches degrade instead of failing, so the group never returns an error.
	var g errgroup.Group
	g.Go(func() error {
		result.Global = r.SearchGlobal(ctx, query)
		return nil
	})
	if subjectID != nil {
		g.Go(func() error {
			result.Subject = r.SearchSubject(ctx, query, *subjectID)
			return nil
		})
	}
	_ = g.Wait()

	combined := make([]models.KnowledgeChunk, 0, len(result.Global)+len(result.Subject))
	combined = append(combined, result.Global...)
	combined = append(combined, result.Subject...)
	prompts.SortByAuthority(combined)
	result.Combined = combined

	r.logger.Debug("Knowledge retrieved",
		zap.Int("global", len(result.Global)),
		zap.Int("subject", len(result.Subject)))

	return result
}

func (r *knowledgeRetriever) Index(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if err := validateChunk(c); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for i, c := range chunks {
		c.Embedding = vectors[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		g.Go(func() error {
			return retry.DoIfRetryable(gctx, r.upsertRetry, func() error {
				return r.store.Upsert(gctx, c)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	r.logger.Info("Indexed knowledge chunks",
		zap.Int("count", len(chunks)),
		zap.String("embedder", r.embedder.Name()))
	return nil
}

func (r *knowledgeRetriever) DeleteDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	return r.store.DeleteByDocument(ctx, documentID)
}

func validateChunk(c *models.KnowledgeChunk) error {
	if c == nil {
		return fmt.Errorf("chunk is nil")
	}
	if c.Content == "" {
		return fmt.Errorf("content is empty")
	}
	if c.DocumentID == uuid.Nil {
		return fmt.Errorf("document_id is required")
	}
	if c.AuthorityLevel < 1 {
		return fmt.Errorf("authority_level must be at least 1, got %d", c.AuthorityLevel)
	}
	switch c.Scope {
	case models.ScopeGlobal:
		if c.SubjectID != nil {
			return fmt.Errorf("global chunk must not reference a subject")
		}
	case models.ScopeSubject:
		if c.SubjectID == nil {
			return fmt.Errorf("subject chunk requires subject_id")
		}
	default:
		return fmt.Errorf("unknown scope %q", c.Scope)
	}
	return nil
}
