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

// SubjectRepository exposes the subject profile fields this core mutates.
// Profiles themselves are owned by an external system; Ensure creates a
// placeholder row so warnings can reference it.
type SubjectRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.SubjectProfile, error)
	Ensure(ctx context.Context, id uuid.UUID, displayName string, initialPoints int) (*models.SubjectProfile, error)
}

type subjectRepository struct {
	db *database.DB
}

// NewSubjectRepository creates a new SubjectRepository.
func NewSubjectRepository(db *database.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

var _ SubjectRepository = (*subjectRepository)(nil)

func (r *subjectRepository) Get(ctx context.Context, id uuid.UUID) (*models.SubjectProfile, error) {
	var p models.SubjectProfile
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT id, display_name, points, updated_at FROM reasoner_subject_profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.DisplayName, &p.Points, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subject profile: %w", err)
	}
	return &p, nil
}

func (r *subjectRepository) Ensure(ctx context.Context, id uuid.UUID, displayName string, initialPoints int) (*models.SubjectProfile, error) {
	if initialPoints < 0 {
		initialPoints = 0
	}

	query := `
		INSERT INTO reasoner_subject_profiles (id, display_name, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING id, display_name, points, updated_at`

	var p models.SubjectProfile
	if err := r.db.Conn(ctx).QueryRow(ctx, query, id, displayName, initialPoints).
		Scan(&p.ID, &p.DisplayName, &p.Points, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to ensure subject profile: %w", err)
	}
	return &p, nil
}
