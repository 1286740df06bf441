package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// DecisionLogRepository is the append-only store for reasoning audit records.
// There is deliberately no update or delete.
type DecisionLogRepository interface {
	Create(ctx context.Context, log *models.DecisionLog) error
	ListBySubject(ctx context.Context, subjectID uuid.UUID, limit int) ([]*models.DecisionLog, error)
}

type decisionLogRepository struct {
	db *database.DB
}

// NewDecisionLogRepository creates a new DecisionLogRepository.
func NewDecisionLogRepository(db *database.DB) DecisionLogRepository {
	return &decisionLogRepository{db: db}
}

var _ DecisionLogRepository = (*decisionLogRepository)(nil)

func (r *decisionLogRepository) Create(ctx context.Context, log *models.DecisionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if log.SourceChunkIDs == nil {
		log.SourceChunkIDs = []uuid.UUID{}
	}
	if log.AuthorityLayersUsed == nil {
		log.AuthorityLayersUsed = []string{}
	}

	query := `
		INSERT INTO reasoner_decision_logs (
			id, action_type, input_summary, output_summary, full_response,
			source_chunk_ids, authority_layers_used, subject_id, triggered_by,
			model_used, token_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		log.ID, log.ActionType, log.InputSummary, log.OutputSummary, log.FullResponse,
		log.SourceChunkIDs, log.AuthorityLayersUsed, log.SubjectID, log.TriggeredBy,
		log.ModelUsed, log.TokenCount, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create decision log: %w", err)
	}
	return nil
}

func (r *decisionLogRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit int) ([]*models.DecisionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, action_type, input_summary, output_summary, full_response,
		       source_chunk_ids, authority_layers_used, subject_id, triggered_by,
		       model_used, token_count, created_at
		FROM reasoner_decision_logs
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Conn(ctx).Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.DecisionLog
	for rows.Next() {
		var l models.DecisionLog
		if err := rows.Scan(
			&l.ID, &l.ActionType, &l.InputSummary, &l.OutputSummary, &l.FullResponse,
			&l.SourceChunkIDs, &l.AuthorityLayersUsed, &l.SubjectID, &l.TriggeredBy,
			&l.ModelUsed, &l.TokenCount, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision logs: %w", err)
	}
	return logs, nil
}
