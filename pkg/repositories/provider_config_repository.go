package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// ProviderConfigRepository provides data access for configured AI backends.
// Credentials are stored and returned in their encrypted form; decryption
// happens per provider when adapters are built so one bad credential
// cannot fail the whole load.
type ProviderConfigRepository interface {
	Create(ctx context.Context, cfg *models.ProviderConfig) error
	Update(ctx context.Context, cfg *models.ProviderConfig) error
	Get(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error)
	GetByName(ctx context.Context, name string) (*models.ProviderConfig, error)
	List(ctx context.Context) ([]*models.ProviderConfig, error)
	// ListEnabled returns enabled providers ordered by ascending priority.
	ListEnabled(ctx context.Context) ([]*models.ProviderConfig, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type providerConfigRepository struct {
	db *database.DB
}

// NewProviderConfigRepository creates a new ProviderConfigRepository.
func NewProviderConfigRepository(db *database.DB) ProviderConfigRepository {
	return &providerConfigRepository{db: db}
}

var _ ProviderConfigRepository = (*providerConfigRepository)(nil)

const providerConfigColumns = `id, name, kind, enabled, priority, is_local, base_url, model,
	custom_instructions, credential_enc, supports_vision, supports_files,
	supports_streaming, created_at, updated_at`

func (r *providerConfigRepository) Create(ctx context.Context, cfg *models.ProviderConfig) error {
	now := time.Now()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	query := `
		INSERT INTO reasoner_provider_configs (` + providerConfigColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		cfg.ID, cfg.Name, string(cfg.Kind), cfg.Enabled, cfg.Priority, cfg.IsLocal,
		cfg.BaseURL, cfg.Model, cfg.CustomInstructions, cfg.CredentialEnc,
		cfg.Capabilities.Vision, cfg.Capabilities.Files, cfg.Capabilities.Streaming,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("provider %q: %w", cfg.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create provider config: %w", err)
	}
	return nil
}

func (r *providerConfigRepository) Update(ctx context.Context, cfg *models.ProviderConfig) error {
	cfg.UpdatedAt = time.Now()

	query := `
		UPDATE reasoner_provider_configs SET
			name = $2, kind = $3, enabled = $4, priority = $5, is_local = $6,
			base_url = $7, model = $8, custom_instructions = $9, credential_enc = $10,
			supports_vision = $11, supports_files = $12, supports_streaming = $13,
			updated_at = $14
		WHERE id = $1`

	tag, err := r.db.Conn(ctx).Exec(ctx, query,
		cfg.ID, cfg.Name, string(cfg.Kind), cfg.Enabled, cfg.Priority, cfg.IsLocal,
		cfg.BaseURL, cfg.Model, cfg.CustomInstructions, cfg.CredentialEnc,
		cfg.Capabilities.Vision, cfg.Capabilities.Files, cfg.Capabilities.Streaming,
		cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("provider %q: %w", cfg.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *providerConfigRepository) Get(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + ` FROM reasoner_provider_configs WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *providerConfigRepository) GetByName(ctx context.Context, name string) (*models.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + ` FROM reasoner_provider_configs WHERE name = $1`
	return r.getOne(ctx, query, name)
}

func (r *providerConfigRepository) getOne(ctx context.Context, query string, arg any) (*models.ProviderConfig, error) {
	cfg, err := scanProviderConfig(r.db.Conn(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return cfg, nil
}

func (r *providerConfigRepository) List(ctx context.Context) ([]*models.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + `
		FROM reasoner_provider_configs
		ORDER BY priority, created_at`
	return r.list(ctx, query)
}

func (r *providerConfigRepository) ListEnabled(ctx context.Context) ([]*models.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + `
		FROM reasoner_provider_configs
		WHERE enabled
		ORDER BY priority, created_at`
	return r.list(ctx, query)
}

func (r *providerConfigRepository) list(ctx context.Context, query string) ([]*models.ProviderConfig, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.ProviderConfig
	for rows.Next() {
		cfg, err := scanProviderConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider configs: %w", err)
	}
	return configs, nil
}

func (r *providerConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM reasoner_provider_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanProviderConfig(row pgx.Row) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	var kind string
	err := row.Scan(
		&cfg.ID, &cfg.Name, &kind, &cfg.Enabled, &cfg.Priority, &cfg.IsLocal,
		&cfg.BaseURL, &cfg.Model, &cfg.CustomInstructions, &cfg.CredentialEnc,
		&cfg.Capabilities.Vision, &cfg.Capabilities.Files, &cfg.Capabilities.Streaming,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Kind = models.ProviderKind(kind)
	return &cfg, nil
}
