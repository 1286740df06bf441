package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// KnowledgeStore is the embedding store contract the retriever depends on.
// Implemented by the pgvector repository below and by the on-device SQLite store.
type KnowledgeStore interface {
	// Upsert stores a chunk with its embedding, replacing any chunk with the same id.
	Upsert(ctx context.Context, chunk *models.KnowledgeChunk) error

	// Query returns up to k chunks whose cosine similarity to embedding is at
	// least threshold, most similar first. Similarity is set on each result.
	Query(ctx context.Context, embedding []float32, k int, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error)

	// DeleteByDocument removes every chunk of a document.
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
}

type knowledgeRepository struct {
	db *database.DB
}

// NewKnowledgeRepository creates a pgvector-backed KnowledgeStore.
func NewKnowledgeRepository(db *database.DB) KnowledgeStore {
	return &knowledgeRepository{db: db}
}

var _ KnowledgeStore = (*knowledgeRepository)(nil)

func (r *knowledgeRepository) Upsert(ctx context.Context, chunk *models.KnowledgeChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("chunk %s has no embedding", chunk.ID)
	}
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}

	query := `
		INSERT INTO reasoner_knowledge_chunks (
			id, document_id, content, chunk_index, scope, doc_type,
			authority_level, subject_id, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::vector)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			scope = EXCLUDED.scope,
			doc_type = EXCLUDED.doc_type,
			authority_level = EXCLUDED.authority_level,
			subject_id = EXCLUDED.subject_id,
			embedding = EXCLUDED.embedding`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.Content, chunk.ChunkIndex, string(chunk.Scope),
		chunk.DocType, chunk.AuthorityLevel, chunk.SubjectID,
		pgvector.NewVector(chunk.Embedding).String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge chunk: %w", err)
	}
	return nil
}

func (r *knowledgeRepository) Query(ctx context.Context, embedding []float32, k int, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	// The embedding column is never selected; only the distance is needed.
	query := `
		WITH q AS (SELECT $1::text::vector AS v)
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.scope, c.doc_type,
		       c.authority_level, c.subject_id, 1 - (c.embedding <=> q.v) AS similarity
		FROM reasoner_knowledge_chunks c, q
		WHERE ($2::text = '' OR c.scope = $2::text)
		  AND ($3::uuid IS NULL OR c.subject_id = $3::uuid)
		  AND ($4::text = '' OR c.doc_type = $4::text)
		  AND 1 - (c.embedding <=> q.v) >= $5
		ORDER BY c.embedding <=> q.v
		LIMIT $6`

	rows, err := r.db.Conn(ctx).Query(ctx, query,
		pgvector.NewVector(embedding).String(),
		string(filter.Scope), filter.SubjectID, filter.DocType, threshold, k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.KnowledgeChunk
	for rows.Next() {
		var c models.KnowledgeChunk
		var scope string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &scope, &c.DocType,
			&c.AuthorityLevel, &c.SubjectID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge chunk: %w", err)
		}
		c.Scope = models.KnowledgeScope(scope)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge chunks: %w", err)
	}
	return chunks, nil
}

func (r *knowledgeRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`DELETE FROM reasoner_knowledge_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete knowledge chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}
