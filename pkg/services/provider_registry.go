package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
)

// CredentialDecrypter decrypts stored provider credentials.
// Implemented by *crypto.SecretStore.
type CredentialDecrypter interface {
	Decrypt(token string) (string, error)
}

// FactoryLookup resolves the adapter factory for a backend kind.
// Returns nil for kinds that are not registered.
type FactoryLookup func(kind models.ProviderKind) provider.Factory

// RunOptions controls one routed invocation.
type RunOptions struct {
	SystemPrompt string
	Sensitivity  models.Sensitivity
}

// ProviderRegistry owns the loaded adapters and routes requests to them.
type ProviderRegistry interface {
	// Initialize loads the enabled providers once. Concurrent callers share a
	// single load. A failed load is not remembered, so the next call retries.
	Initialize(ctx context.Context) error

	// Reload replaces the loaded providers with a fresh load.
	Reload(ctx context.Context) error

	// GetBestProvider applies the selection policy for a request.
	GetBestProvider(ctx context.Context, sensitivity models.Sensitivity) (llm.Provider, error)

	// Run executes a completion on the selected provider, retrying once on a
	// policy-eligible fallback when it fails.
	Run(ctx context.Context, messages []llm.Message, opts RunOptions) (*llm.Result, error)

	// Stream opens a streaming completion with the same fallback policy as Run.
	// Failures after the stream is open surface through Stream.Err.
	Stream(ctx context.Context, messages []llm.Message, opts RunOptions) (*llm.Stream, error)

	// Providers describes the loaded providers in routing order.
	Providers(ctx context.Context) ([]llm.ProviderInfo, error)
}

type providerRegistry struct {
	configs   repositories.ProviderConfigRepository
	settings  repositories.SettingsRepository
	secrets   CredentialDecrypter
	factories FactoryLookup
	cfg       config.RoutingConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger

	group       singleflight.Group
	mu          sync.RWMutex
	providers   []llm.Provider
	initialized bool
}

// NewProviderRegistry creates a new ProviderRegistry. A nil factories uses
// the adapters registered with the provider package.
func NewProviderRegistry(
	configs repositories.ProviderConfigRepository,
	settings repositories.SettingsRepository,
	secrets CredentialDecrypter,
	factories FactoryLookup,
	cfg config.RoutingConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) ProviderRegistry {
	if factories == nil {
		factories = provider.GetFactory
	}
	return &providerRegistry{
		configs:   configs,
		settings:  settings,
		secrets:   secrets,
		factories: factories,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.Named("provider-registry"),
	}
}

var _ ProviderRegistry = (*providerRegistry)(nil)

func (r *providerRegistry) Initialize(ctx context.Context) error {
	if r.isInitialized() {
		return nil
	}
	_, err, _ := r.group.Do("initialize", func() (any, error) {
		if r.isInitialized() {
			return nil, nil
		}
		// One caller's cancellation must not fail the load the others wait on.
		return nil, r.load(context.WithoutCancel(ctx))
	})
	return err
}

func (r *providerRegistry) Reload(ctx context.Context) error {
	_, err, _ := r.group.Do("reload", func() (any, error) {
		return nil, r.load(context.WithoutCancel(ctx))
	})
	return err
}

func (r *providerRegistry) isInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// load builds one adapter per enabled config. A config that cannot be turned
// into an adapter is skipped so the others still serve.
func (r *providerRegistry) load(ctx context.Context) error {
	cfgs, err := r.configs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled providers: %w", err)
	}

	loaded := make([]llm.Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := r.build(cfg)
		if err != nil {
			r.logger.Warn("Skipping provider",
				zap.String("provider", cfg.Name),
				zap.String("kind", string(cfg.Kind)),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		loaded = append(loaded, p)
	}

	r.mu.Lock()
	r.providers = loaded
	r.initialized = true
	r.mu.Unlock()

	r.logger.Info("Providers loaded",
		zap.Int("enabled", len(cfgs)),
		zap.Int("loaded", len(loaded)))
	return nil
}

func (r *providerRegistry) build(cfg *models.ProviderConfig) (llm.Provider, error) {
	factory := r.factories(cfg.Kind)
	if factory == nil {
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}

	var apiKey string
	if cfg.HasCredential() {
		if cfg.IsLocal {
			return nil, fmt.Errorf("local provider carries a network credential")
		}
		key, err := r.secrets.Decrypt(cfg.CredentialEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential: %w", err)
		}
		apiKey = key
	}

	p, err := factory(cfg, apiKey, r.logger)
	if err != nil {
		return nil, fmt.Errorf("construct adapter: %w", err)
	}
	return p, nil
}

// snapshot initializes on first use and returns the loaded providers.
func (r *providerRegistry) snapshot(ctx context.Context) ([]llm.Provider, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers, nil
}

func (r *providerRegistry) Providers(ctx context.Context) ([]llm.ProviderInfo, error) {
	providers, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]llm.ProviderInfo, len(providers))
	for i, p := range providers {
		infos[i] = p.Info()
	}
	return infos, nil
}

// loadSettings falls back to defaults so routing still works when the
// settings row cannot be read.
func (r *providerRegistry) loadSettings(ctx context.Context) *models.EngineSettings {
	s, err := r.settings.Get(ctx)
	if err != nil || s == nil {
		if err != nil {
			r.logger.Warn("Failed to load engine settings, using defaults",
				zap.String("error", logging.SanitizeError(err)))
		}
		return models.DefaultEngineSettings()
	}
	return s
}

func (r *providerRegistry) GetBestProvider(ctx context.Context, sensitivity models.Sensitivity) (llm.Provider, error) {
	p, _, err := r.selectProvider(ctx, sensitivity)
	return p, err
}

// selectProvider returns the chosen provider and whether the request is
// restricted to local providers.
func (r *providerRegistry) selectProvider(ctx context.Context, sensitivity models.Sensitivity) (llm.Provider, bool, error) {
	providers, err := r.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(providers) == 0 {
		return nil, false, apperrors.ErrNoProvidersAvailable
	}

	settings := r.loadSettings(ctx)
	restricted := settings.PrivacyMode || sensitivity == models.SensitivityHigh

	if restricted {
		for _, p := range providers {
			if p.Info().IsLocal {
				return p, true, nil
			}
		}
		if r.cfg.StrictPrivacy {
			return nil, true, apperrors.ErrNoLocalProvider
		}
		r.logger.Warn("No local provider loaded, routing privacy-restricted request to a networked provider",
			zap.Bool("privacy_mode", settings.PrivacyMode),
			zap.String("sensitivity", string(sensitivity)))
		r.metrics.PrivacyFallthrough()
		return providers[0], true, nil
	}

	if settings.DefaultProviderID != nil {
		for _, p := range providers {
			if p.Info().ID == *settings.DefaultProviderID {
				return p, false, nil
			}
		}
	}

	return providers[0], false, nil
}

// fallbackFor returns the first other loaded provider eligible under the
// request's locality constraint, or nil.
func (r *providerRegistry) fallbackFor(ctx context.Context, primary llm.Provider, restricted bool) llm.Provider {
	providers, err := r.snapshot(ctx)
	if err != nil {
		return nil
	}
	for _, p := range providers {
		if p == primary {
			continue
		}
		if restricted && !p.Info().IsLocal {
			continue
		}
		return p
	}
	return nil
}

func (r *providerRegistry) Run(ctx context.Context, messages []llm.Message, opts RunOptions) (*llm.Result, error) {
	primary, restricted, err := r.selectProvider(ctx, opts.Sensitivity)
	if err != nil {
		return nil, err
	}

	res, err := r.generate(ctx, primary, messages, opts.SystemPrompt)
	if err == nil {
		r.metrics.ProviderRequest(primary.Info().Name, metrics.OutcomeSuccess)
		return res, nil
	}
	r.metrics.ProviderRequest(primary.Info().Name, metrics.OutcomeFailure)

	fallback := r.fallbackFor(ctx, primary, restricted)
	if fallback == nil {
		return nil, err
	}
	r.logFallback(primary, fallback, err)

	res, fbErr := r.generate(ctx, fallback, messages, opts.SystemPrompt)
	if fbErr != nil {
		r.metrics.ProviderRequest(fallback.Info().Name, metrics.OutcomeFailure)
		return nil, fmt.Errorf("fallback provider %s failed: %w", fallback.Info().Name, errors.Join(fbErr, err))
	}
	r.metrics.ProviderRequest(fallback.Info().Name, metrics.OutcomeFallback)
	return res, nil
}

func (r *providerRegistry) generate(ctx context.Context, p llm.Provider, messages []llm.Message, systemPrompt string) (*llm.Result, error) {
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	info := p.Info()
	start := time.Now()
	res, err := p.GenerateText(ctx, messages, llm.JoinSystemPrompt(info.CustomInstructions, systemPrompt))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Provider responded",
		zap.String("provider", info.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("tokens", res.Usage.TotalTokens))
	return res, nil
}

func (r *providerRegistry) Stream(ctx context.Context, messages []llm.Message, opts RunOptions) (*llm.Stream, error) {
	primary, restricted, err := r.selectProvider(ctx, opts.Sensitivity)
	if err != nil {
		return nil, err
	}

	s, err := r.openStream(ctx, primary, messages, opts.SystemPrompt)
	if err == nil {
		r.metrics.ProviderRequest(primary.Info().Name, metrics.OutcomeSuccess)
		return s, nil
	}
	r.metrics.ProviderRequest(primary.Info().Name, metrics.OutcomeFailure)

	fallback := r.fallbackFor(ctx, primary, restricted)
	if fallback == nil {
		return nil, err
	}
	r.logFallback(primary, fallback, err)

	s, fbErr := r.openStream(ctx, fallback, messages, opts.SystemPrompt)
	if fbErr != nil {
		r.metrics.ProviderRequest(fallback.Info().Name, metrics.OutcomeFailure)
		return nil, fmt.Errorf("fallback provider %s failed: %w", fallback.Info().Name, errors.Join(fbErr, err))
	}
	r.metrics.ProviderRequest(fallback.Info().Name, metrics.OutcomeFallback)
	return s, nil
}

func (r *providerRegistry) openStream(ctx context.Context, p llm.Provider, messages []llm.Message, systemPrompt string) (*llm.Stream, error) {
	info := p.Info()
	s, err := p.StreamText(ctx, messages, llm.JoinSystemPrompt(info.CustomInstructions, systemPrompt))
	if err != nil {
		return nil, err
	}
	if s.Provider == "" {
		s.Provider = info.Name
	}
	if s.Model == "" {
		s.Model = info.Model
	}
	return s, nil
}

func (r *providerRegistry) logFallback(primary, fallback llm.Provider, cause error) {
	r.metrics.ProviderFallback()
	r.logger.Warn("Primary provider failed, trying fallback",
		zap.String("primary", primary.Info().Name),
		zap.String("fallback", fallback.Info().Name),
		zap.String("error_type", string(llm.GetErrorType(cause))),
		zap.String("error", logging.SanitizeError(cause)))
}
