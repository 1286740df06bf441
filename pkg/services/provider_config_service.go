package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/crypto"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// CredentialCipher encrypts and decrypts stored provider credentials.
// Implemented by *crypto.SecretStore.
type CredentialCipher interface {
	CredentialDecrypter
	Encrypt(plaintext string) (string, error)
}

// ProviderConfigView is a provider config safe to show an operator.
type ProviderConfigView struct {
	ID                 uuid.UUID                   `json:"id"`
	Name               string                      `json:"name"`
	Kind               models.ProviderKind         `json:"kind"`
	Enabled            bool                        `json:"enabled"`
	Priority           int                         `json:"priority"`
	IsLocal            bool                        `json:"is_local"`
	BaseURL            string                      `json:"base_url,omitempty"`
	Model              string                      `json:"model"`
	CustomInstructions string                      `json:"custom_instructions,omitempty"`
	Capabilities       models.ProviderCapabilities `json:"capabilities"`
	MaskedCredential   string                      `json:"masked_credential,omitempty"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// ProviderConfigService administers provider configs and keeps the router in sync.
type ProviderConfigService interface {
	// Create validates and stores a new provider. apiKey is the plaintext
	// credential, empty for local providers.
	Create(ctx context.Context, cfg *models.ProviderConfig, apiKey string) (*ProviderConfigView, error)

	// Update replaces a stored provider. An empty apiKey keeps the stored credential.
	Update(ctx context.Context, cfg *models.ProviderConfig, apiKey string) (*ProviderConfigView, error)

	// Upsert creates the provider or updates the one with the same name.
	Upsert(ctx context.Context, cfg *models.ProviderConfig, apiKey string) (*ProviderConfigView, error)

	Get(ctx context.Context, id uuid.UUID) (*ProviderConfigView, error)
	List(ctx context.Context) ([]*ProviderConfigView, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Test builds an adapter for a stored provider and issues a trivial generation.
	Test(ctx context.Context, id uuid.UUID) (*llm.TestResult, error)
}

type providerConfigService struct {
	repo    repositories.ProviderConfigRepository
	cipher  CredentialCipher
	router  ProviderRegistry
	factory FactoryLookup
	logger  *zap.Logger
}

// NewProviderConfigService creates a new ProviderConfigService. A nil factory
// uses the adapters registered with the provider package.
func NewProviderConfigService(
	repo repositories.ProviderConfigRepository,
	cipher CredentialCipher,
	router ProviderRegistry,
	factory FactoryLookup,
	logger *zap.Logger,
) ProviderConfigService {
	if factory == nil {
		factory = provider.GetFactory
	}
	return &providerConfigService{
		repo:    repo,
		cipher:  cipher,
		router:  router,
		factory: factory,
		logger:  logger.Named("provider-config"),
	}
}

var _ ProviderConfigService = (*providerConfigService)(nil)

// prepare validates cfg and stores the encrypted credential on it.
func (s *providerConfigService) prepare(cfg *models.ProviderConfig, apiKey string) error {
	normalizeLocality(cfg)
	if err := cfg.Validate(apiKey); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidProviderConfig, err.Error())
	}
	if s.factory(cfg.Kind) == nil {
		return fmt.Errorf("%w: unknown provider kind %q", apperrors.ErrInvalidProviderConfig, cfg.Kind)
	}

	if apiKey != "" {
		enc, err := s.cipher.Encrypt(apiKey)
		if err != nil {
			return fmt.Errorf("encrypt credential: %w", err)
		}
		cfg.CredentialEnc = enc
	}
	return nil
}

func (s *providerConfigService) Create(ctx context.Context, cfg *models.ProviderConfig, apiKey string) (*ProviderConfigView, error) {
	if err := s.prepare(cfg, apiKey); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("Provider created",
		zap.String("provider", cfg.Name),
		zap.String("kind", string(cfg.Kind)),
		zap.Bool("is_local", cfg.IsLocal))
	s.reload(ctx)
	return s.view(cfg), nil
}

func (s *providerConfigService) Update(ctx context.Context, cfg *models.ProviderConfig, apiKey string) (*ProviderConfigView, error) {
	existing, err := s.repo.Get(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	normalizeLocality(cfg)
	cfg.CredentialEnc = ""
	if apiKey == "" && !cfg.IsLocal {
		cfg.CredentialEnc = existing.CredentialEnc
	}
	cfg.CreatedAt = existing.CreatedAt

	if err := s.prepare(cfg, apiKey); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("Provider updated", zap.String("provider", cfg.Name))
	s.reload(ctx)
	return s.view(cfg), nil
}

func (s *providerConfigService) Upsert(ctx context.Context, cfg *models.ProviderConfig, apiKey string) (*ProviderConfigView, error) {
	existing, err := s.repo.GetByName(ctx, cfg.Name)
	if errors.Is(err, apperrors.ErrNotFound) {
		return s.Create(ctx, cfg, apiKey)
	}
	if err != nil {
		return nil, err
	}
	cfg.ID = existing.ID
	return s.Update(ctx, cfg, apiKey)
}

func (s *providerConfigService) Get(ctx context.Context, id uuid.UUID) (*ProviderConfigView, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(cfg), nil
}

func (s *providerConfigService) List(ctx context.Context) ([]*ProviderConfigView, error) {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*ProviderConfigView, len(cfgs))
	for i, cfg := range cfgs {
		views[i] = s.view(cfg)
	}
	return views, nil
}

func (s *providerConfigService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Provider deleted", zap.String("provider_id", id.String()))
	s.reload(ctx)
	return nil
}

func (s *providerConfigService) Test(ctx context.Context, id uuid.UUID) (*llm.TestResult, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	factory := s.factory(cfg.Kind)
	if factory == nil {
		return &llm.TestResult{Message: fmt.Sprintf("Unknown provider kind %q", cfg.Kind)}, nil
	}

	var apiKey string
	if cfg.HasCredential() {
		apiKey, err = s.cipher.Decrypt(cfg.CredentialEnc)
		if err != nil {
			s.logger.Warn("Stored credential could not be decrypted",
				zap.String("provider", cfg.Name),
				zap.String("error", err.Error()))
			return &llm.TestResult{Message: "Stored credential could not be decrypted"}, nil
		}
	}

	p, err := factory(cfg, apiKey, s.logger)
	if err != nil {
		return &llm.TestResult{Message: logging.SanitizeError(err)}, nil
	}
	return llm.TestConnection(ctx, p), nil
}

// normalizeLocality marks kinds that only ever run inside the deployment as local.
func normalizeLocality(cfg *models.ProviderConfig) {
	if cfg.Kind == models.ProviderKindOllama {
		cfg.IsLocal = true
	}
}

// reload refreshes the router. The stored change already succeeded, so a
// failed reload is only logged.
func (s *providerConfigService) reload(ctx context.Context) {
	if s.router == nil {
		return
	}
	if err := s.router.Reload(ctx); err != nil {
		s.logger.Warn("Failed to reload providers",
			zap.String("error", logging.SanitizeError(err)))
	}
}

func (s *providerConfigService) view(cfg *models.ProviderConfig) *ProviderConfigView {
	v := &ProviderConfigView{
		ID:                 cfg.ID,
		Name:               cfg.Name,
		Kind:               cfg.Kind,
		Enabled:            cfg.Enabled,
		Priority:           cfg.Priority,
		IsLocal:            cfg.IsLocal,
		BaseURL:            cfg.BaseURL,
		Model:              cfg.Model,
		CustomInstructions: cfg.CustomInstructions,
		Capabilities:       cfg.Capabilities,
		UpdatedAt:          cfg.UpdatedAt,
	}
	if cfg.HasCredential() {
		if key, err := s.cipher.Decrypt(cfg.CredentialEnc); err == nil {
			v.MaskedCredential = crypto.Mask(key)
		} else {
			v.MaskedCredential = crypto.Mask("")
		}
	}
	return v
}
