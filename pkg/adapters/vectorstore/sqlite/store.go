// Package sqlite is an on-device knowledge store for deployments that must
// keep embeddings off the network (privacy mode). It stores chunks in a
// pure-Go SQLite database and ranks them with a registered cosine function.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	sqlitedrv "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

const cosineFunc = "reasoner_cosine_similarity"

func init() {
	// Deterministic: same input blobs produce the same similarity.
	_ = sqlitedrv.RegisterDeterministicScalarFunction(cosineFunc, 2, cosineSimilarityFunc)
}

// Store implements repositories.KnowledgeStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ repositories.KnowledgeStore = (*Store)(nil)

// Open opens or creates the store at path. Use ":memory:" for an ephemeral store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Writers serialize in SQLite anyway; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.Named("sqlite-knowledge")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info("Opened local knowledge store", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id              TEXT PRIMARY KEY,
		document_id     TEXT NOT NULL,
		content         TEXT NOT NULL,
		chunk_index     INTEGER NOT NULL,
		scope           TEXT NOT NULL,
		doc_type        TEXT NOT NULL,
		authority_level INTEGER NOT NULL,
		subject_id      TEXT,
		embedding       BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_document ON knowledge_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_scope ON knowledge_chunks(scope, subject_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Upsert(ctx context.Context, chunk *models.KnowledgeChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("chunk %s has no embedding", chunk.ID)
	}
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}

	var subjectID sql.NullString
	if chunk.SubjectID != nil {
		subjectID = sql.NullString{String: chunk.SubjectID.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_chunks (
			id, document_id, content, chunk_index, scope, doc_type,
			authority_level, subject_id, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			content = excluded.content,
			chunk_index = excluded.chunk_index,
			scope = excluded.scope,
			doc_type = excluded.doc_type,
			authority_level = excluded.authority_level,
			subject_id = excluded.subject_id,
			embedding = excluded.embedding`,
		chunk.ID.String(), chunk.DocumentID.String(), chunk.Content, chunk.ChunkIndex,
		string(chunk.Scope), chunk.DocType, chunk.AuthorityLevel, subjectID,
		encodeVector(chunk.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter models.KnowledgeFilter, threshold float64) ([]models.KnowledgeChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	var subjectID string
	if filter.SubjectID != nil {
		subjectID = filter.SubjectID.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, scope, doc_type,
		       authority_level, subject_id, similarity
		FROM (
			SELECT *, `+cosineFunc+`(embedding, ?) AS similarity
			FROM knowledge_chunks
			WHERE (? = '' OR scope = ?)
			  AND (? = '' OR subject_id = ?)
			  AND (? = '' OR doc_type = ?)
		)
		WHERE similarity >= ?
		ORDER BY similarity DESC
		LIMIT ?`,
		encodeVector(embedding),
		string(filter.Scope), string(filter.Scope),
		subjectID, subjectID,
		filter.DocType, filter.DocType,
		threshold, k,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.KnowledgeChunk
	for rows.Next() {
		var c models.KnowledgeChunk
		var id, documentID, scope string
		var subject sql.NullString
		if err := rows.Scan(&id, &documentID, &c.Content, &c.ChunkIndex, &scope, &c.DocType,
			&c.AuthorityLevel, &subject, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse chunk id: %w", err)
		}
		if c.DocumentID, err = uuid.Parse(documentID); err != nil {
			return nil, fmt.Errorf("parse document id: %w", err)
		}
		if subject.Valid {
			sid, err := uuid.Parse(subject.String)
			if err != nil {
				return nil, fmt.Errorf("parse subject id: %w", err)
			}
			c.SubjectID = &sid
		}
		c.Scope = models.KnowledgeScope(scope)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = ?`, documentID.String())
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return res.RowsAffected()
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(v driver.Value) ([]float32, error) {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T", cosineFunc, v)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%s: blob length %d not multiple of 4", cosineFunc, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func cosineSimilarityFunc(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, err := decodeVector(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeVector(args[1])
	if err != nil {
		return nil, err
	}
	// Mismatched dimensions (an embedding model change) never match.
	if len(a) != len(b) {
		return float64(-1), nil
	}
	return cosineSimilarity(a, b), nil
}

// cosineSimilarity returns 0 for zero-length or zero-norm vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
