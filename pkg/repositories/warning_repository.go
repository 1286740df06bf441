package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// WarningBuilder builds the warning to insert given the number of the
// subject's currently active warnings.
type WarningBuilder func(activeCount int) (*models.Warning, error)

// WarningRepository stores disciplinary records.
type WarningRepository interface {
	// Issue counts the subject's active warnings, inserts the warning built
	// from that count and applies its point deduction (floored at zero) in a
	// single transaction holding a row lock on the subject profile. Active
	// warnings left with gaps by an external close are renumbered 1..n in
	// issue order first, so count+1 is always the next free number.
	// Returns the inserted warning and the subject's new point balance.
	Issue(ctx context.Context, subjectID uuid.UUID, build WarningBuilder) (*models.Warning, int, error)

	ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*models.Warning, error)
}

type warningRepository struct {
	db *database.DB
}

// NewWarningRepository creates a new WarningRepository.
func NewWarningRepository(db *database.DB) WarningRepository {
	return &warningRepository{db: db}
}

var _ WarningRepository = (*warningRepository)(nil)

func (r *warningRepository) Issue(ctx context.Context, subjectID uuid.UUID, build WarningBuilder) (*models.Warning, int, error) {
	var issued *models.Warning
	var balance int

	err := r.db.InTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)

		var points int
		err := conn.QueryRow(ctx,
			`SELECT points FROM reasoner_subject_profiles WHERE id = $1 FOR UPDATE`, subjectID,
		).Scan(&points)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("subject %s: %w", subjectID, apperrors.ErrNotFound)
			}
			return fmt.Errorf("failed to lock subject profile: %w", err)
		}

		active, err := r.compactActive(ctx, conn, subjectID)
		if err != nil {
			return err
		}

		w, err := build(active)
		if err != nil {
			return err
		}
		w.SubjectID = subjectID
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		if w.Status == "" {
			w.Status = models.WarningStatusActive
		}

		query := `
			INSERT INTO reasoner_warnings (
				id, subject_id, warning_number, severity, violation_type, description,
				violated_clause, source_document_id, source_chunk_id, action_taken,
				points_deducted, requires_meeting, escalated, escalation_reason,
				status, issued_by, is_autonomous, decision_log_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING created_at`

		if err := conn.QueryRow(ctx, query,
			w.ID, w.SubjectID, w.WarningNumber, string(w.Severity), w.ViolationType, w.Description,
			w.ViolatedClause, w.SourceDocumentID, w.SourceChunkID, w.ActionTaken,
			w.PointsDeducted, w.RequiresMeeting, w.Escalated, w.EscalationReason,
			w.Status, w.IssuedBy, w.IsAutonomous, w.DecisionLogID,
		).Scan(&w.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert warning: %w", err)
		}

		if err := conn.QueryRow(ctx, `
			UPDATE reasoner_subject_profiles
			SET points = GREATEST(points - $2, 0), updated_at = NOW()
			WHERE id = $1
			RETURNING points`, subjectID, w.PointsDeducted,
		).Scan(&balance); err != nil {
			return fmt.Errorf("failed to apply point deduction: %w", err)
		}

		issued = w
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return issued, balance, nil
}

// compactActive renumbers the subject's active warnings to 1..n, keeping their
// order, and returns n. Callers must hold the subject row lock.
func (r *warningRepository) compactActive(ctx context.Context, conn database.Querier, subjectID uuid.UUID) (int, error) {
	var count, highest int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(MAX(warning_number), 0)
		FROM reasoner_warnings
		WHERE subject_id = $1 AND status = $2`,
		subjectID, models.WarningStatusActive,
	).Scan(&count, &highest)
	if err != nil {
		return 0, fmt.Errorf("failed to count active warnings: %w", err)
	}
	if count == highest {
		return count, nil
	}

	// The unique index on active numbers is checked row by row, so shift
	// every active number above the current maximum before renumbering.
	if _, err := conn.Exec(ctx, `
		UPDATE reasoner_warnings
		SET warning_number = warning_number + $3
		WHERE subject_id = $1 AND status = $2`,
		subjectID, models.WarningStatusActive, highest,
	); err != nil {
		return 0, fmt.Errorf("failed to shift active warnings: %w", err)
	}
	if _, err := conn.Exec(ctx, `
		UPDATE reasoner_warnings w
		SET warning_number = ranked.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY warning_number) AS position
			FROM reasoner_warnings
			WHERE subject_id = $1 AND status = $2
		) ranked
		WHERE w.id = ranked.id`,
		subjectID, models.WarningStatusActive,
	); err != nil {
		return 0, fmt.Errorf("failed to renumber active warnings: %w", err)
	}
	return count, nil
}

func (r *warningRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*models.Warning, error) {
	query := `
		SELECT id, subject_id, warning_number, severity, violation_type, description,
		       violated_clause, source_document_id, source_chunk_id, action_taken,
		       points_deducted, requires_meeting, escalated, escalation_reason,
		       status, issued_by, is_autonomous, decision_log_id, created_at
		FROM reasoner_warnings
		WHERE subject_id = $1
		ORDER BY created_at, warning_number`

	rows, err := r.db.Conn(ctx).Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	defer rows.Close()

	var warnings []*models.Warning
	for rows.Next() {
		var w models.Warning
		var severity string
		if err := rows.Scan(
			&w.ID, &w.SubjectID, &w.WarningNumber, &severity, &w.ViolationType, &w.Description,
			&w.ViolatedClause, &w.SourceDocumentID, &w.SourceChunkID, &w.ActionTaken,
			&w.PointsDeducted, &w.RequiresMeeting, &w.Escalated, &w.EscalationReason,
			&w.Status, &w.IssuedBy, &w.IsAutonomous, &w.DecisionLogID, &w.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		w.Severity = models.Severity(severity)
		warnings = append(warnings, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warnings: %w", err)
	}
	return warnings, nil
}
