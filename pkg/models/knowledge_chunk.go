package models

import (
	"github.com/google/uuid"
)

// KnowledgeScope says whether a chunk applies institution-wide or to one subject.
type KnowledgeScope string

const (
	ScopeGlobal  KnowledgeScope = "global"
	ScopeSubject KnowledgeScope = "subject"
)

// KnowledgeChunk is one embedded fragment of a source document.
// Chunks are produced by the ingestion pipeline and are immutable once indexed.
type KnowledgeChunk struct {
	ID             uuid.UUID      `json:"id"`
	DocumentID     uuid.UUID      `json:"document_id"`
	Content        string         `json:"content"`
	ChunkIndex     int            `json:"chunk_index"`
	Scope          KnowledgeScope `json:"scope"`
	DocType        string         `json:"doc_type"`
	AuthorityLevel int            `json:"authority_level"` // 1 = highest
	SubjectID      *uuid.UUID     `json:"subject_id,omitempty"`
	Embedding      []float32      `json:"-"`
	Similarity     float64        `json:"similarity,omitempty"` // query-time only
}

// KnowledgeFilter constrains an embedding store query. Zero values mean "any".
type KnowledgeFilter struct {
	Scope     KnowledgeScope
	SubjectID *uuid.UUID
	DocType   string
}

// RetrievalResult groups retrieved chunks by scope.
// Combined holds both scopes ordered by (authority asc, similarity desc).
type RetrievalResult struct {
	Global   []KnowledgeChunk `json:"global"`
	Subject  []KnowledgeChunk `json:"subject"`
	Combined []KnowledgeChunk `json:"combined"`
}

// ChunkIDs returns the ids of every consulted chunk, global first.
func (r *RetrievalResult) ChunkIDs() []uuid.UUID {
	if r == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(r.Global)+len(r.Subject))
	for _, c := range r.Global {
		ids = append(ids, c.ID)
	}
	for _, c := range r.Subject {
		ids = append(ids, c.ID)
	}
	return ids
}

// IsEmpty reports whether nothing was retrieved.
func (r *RetrievalResult) IsEmpty() bool {
	return r == nil || (len(r.Global) == 0 && len(r.Subject) == 0)
}
