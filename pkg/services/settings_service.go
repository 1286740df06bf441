package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// SettingsService reads and edits the engine settings.
type SettingsService interface {
	Get(ctx context.Context) (*models.EngineSettings, error)

	// Update saves settings. A default provider must reference a stored provider.
	Update(ctx context.Context, settings *models.EngineSettings) error
}

type settingsService struct {
	repo      repositories.SettingsRepository
	providers repositories.ProviderConfigRepository
	logger    *zap.Logger
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(repo repositories.SettingsRepository, providers repositories.ProviderConfigRepository, logger *zap.Logger) SettingsService {
	return &settingsService{
		repo:      repo,
		providers: providers,
		logger:    logger.Named("settings"),
	}
}

var _ SettingsService = (*settingsService)(nil)

func (s *settingsService) Get(ctx context.Context) (*models.EngineSettings, error) {
	return s.repo.Get(ctx)
}

func (s *settingsService) Update(ctx context.Context, settings *models.EngineSettings) error {
	if settings.DefaultProviderID != nil {
		if _, err := s.providers.Get(ctx, *settings.DefaultProviderID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("%w: default provider %s does not exist",
					apperrors.ErrInvalidProviderConfig, settings.DefaultProviderID)
			}
			return err
		}
	}

	if err := s.repo.Update(ctx, settings); err != nil {
		return err
	}

	s.logger.Info("Engine settings updated",
		zap.Bool("privacy_mode", settings.PrivacyMode),
		zap.Bool("has_default_provider", settings.DefaultProviderID != nil))
	return nil
}
