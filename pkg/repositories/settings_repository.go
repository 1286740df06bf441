package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// SettingsRepository reads and writes the singleton engine settings row.
type SettingsRepository interface {
	// Get returns the current settings, or the defaults when the row is still blank.
	Get(ctx context.Context) (*models.EngineSettings, error)
	Update(ctx context.Context, settings *models.EngineSettings) error
}

type settingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

var _ SettingsRepository = (*settingsRepository)(nil)

func (r *settingsRepository) Get(ctx context.Context) (*models.EngineSettings, error) {
	query := `
		SELECT privacy_mode, default_provider_id, base_instructions, personality, updated_at
		FROM reasoner_engine_settings
		WHERE id = 1`

	var s models.EngineSettings
	var personality []byte
	err := r.db.Conn(ctx).QueryRow(ctx, query).Scan(
		&s.PrivacyMode, &s.DefaultProviderID, &s.BaseInstructions, &personality, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultEngineSettings(), nil
		}
		return nil, fmt.Errorf("failed to get engine settings: %w", err)
	}

	if len(personality) > 0 {
		if err := json.Unmarshal(personality, &s.Personality); err != nil {
			return nil, fmt.Errorf("failed to unmarshal personality: %w", err)
		}
	}

	// A freshly migrated row has no instructions or personality yet.
	if s.BaseInstructions == "" && s.Personality.IsEmpty() {
		defaults := models.DefaultEngineSettings()
		s.BaseInstructions = defaults.BaseInstructions
		s.Personality = defaults.Personality
	}

	return &s, nil
}

func (r *settingsRepository) Update(ctx context.Context, settings *models.EngineSettings) error {
	personality, err := json.Marshal(settings.Personality)
	if err != nil {
		return fmt.Errorf("failed to marshal personality: %w", err)
	}
	settings.UpdatedAt = time.Now()

	query := `
		INSERT INTO reasoner_engine_settings (
			id, privacy_mode, default_provider_id, base_instructions, personality, updated_at
		) VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			privacy_mode = EXCLUDED.privacy_mode,
			default_provider_id = EXCLUDED.default_provider_id,
			base_instructions = EXCLUDED.base_instructions,
			personality = EXCLUDED.personality,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Conn(ctx).Exec(ctx, query,
		settings.PrivacyMode, settings.DefaultProviderID, settings.BaseInstructions,
		personality, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update engine settings: %w", err)
	}
	return nil
}
