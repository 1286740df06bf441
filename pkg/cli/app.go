package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/vectorstore/sqlite"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/crypto"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/embedding"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/repositories"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"

	// Provider adapters register themselves with the provider package.
	_ "github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider/anthropic"
	_ "github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider/gemini"
	_ "github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider/ollama"
	_ "github.com/ekaya-inc/ekaya-reasoner/pkg/adapters/provider/openai"
)

// base is the configuration, logger and database every command needs.
type base struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

func openBase(ctx context.Context) (*base, error) {
	cfg, err := config.LoadFile(configPath, appVersion)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.ConnectionString()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("connect to database (%s): %w", logging.SanitizeConnectionString(dsn), err)
	}

	logger.Debug("Connected to database", zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	return &base{cfg: cfg, logger: logger, db: db}, nil
}

func (b *base) Close() {
	b.db.Close()
	_ = b.logger.Sync()
}

// app holds the fully wired reasoning core.
type app struct {
	*base

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	closers  []func() error

	settingsRepo repositories.SettingsRepository
	subjects     repositories.SubjectRepository

	decisions    services.DecisionLogService
	retriever    services.KnowledgeRetriever
	router       services.ProviderRegistry
	orchestrator services.ReasoningOrchestrator
	enforcement  services.EnforcementService
	providers    services.ProviderConfigService
	settings     services.SettingsService
	courses      services.CourseGenerator
}

// openApp wires every service. It refuses to start without the deployment
// secret because stored provider credentials cannot be read without it.
func openApp(ctx context.Context) (*app, error) {
	b, err := openBase(ctx)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, b *base) (*app, error) {
	if !b.cfg.HasSecret() {
		return nil, fmt.Errorf("%w: set REASONER_SECRET", crypto.ErrMissingSecret)
	}
	secrets, err := crypto.NewSecretStore(b.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("initialize secret store: %w", err)
	}

	a := &app{
		base:     b,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		database.NewPoolCollector(b.db),
	)
	a.metrics = metrics.New(a.registry)

	store, err := a.openKnowledgeStore()
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(ctx, b.cfg.Embedding, b.logger)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	providerRepo := repositories.NewProviderConfigRepository(b.db)
	a.settingsRepo = repositories.NewSettingsRepository(b.db)
	a.subjects = repositories.NewSubjectRepository(b.db)

	a.decisions = services.NewDecisionLogService(repositories.NewDecisionLogRepository(b.db), a.metrics, b.logger)
	a.retriever = services.NewKnowledgeRetriever(store, embedder, b.cfg.Retrieval, a.metrics, b.logger)
	a.router = services.NewProviderRegistry(providerRepo, a.settingsRepo, secrets, nil, b.cfg.Routing, a.metrics, b.logger)
	a.orchestrator = services.NewReasoningOrchestrator(a.retriever, a.router, a.settingsRepo, a.decisions, b.logger)
	a.enforcement = services.NewEnforcementService(
		a.retriever, a.router, repositories.NewWarningRepository(b.db), a.decisions, b.cfg.Enforcement, a.metrics, b.logger)
	a.providers = services.NewProviderConfigService(providerRepo, secrets, a.router, nil, b.logger)
	a.settings = services.NewSettingsService(a.settingsRepo, providerRepo, b.logger)
	a.courses = services.NewCourseGenerator(a.retriever, a.router, a.decisions, b.logger)

	b.logger.Debug("Reasoning core wired",
		zap.String("knowledge_backend", b.cfg.Knowledge.Backend),
		zap.String("embedder", embedder.Name()))

	return a, nil
}

func (a *app) openKnowledgeStore() (repositories.KnowledgeStore, error) {
	if a.cfg.Knowledge.Backend != config.KnowledgeBackendSQLite {
		return repositories.NewKnowledgeRepository(a.db), nil
	}

	store, err := sqlite.Open(a.cfg.Knowledge.SQLitePath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Failed to close resource", zap.String("error", logging.SanitizeError(err)))
		}
	}
	a.closers = nil
}

func (a *app) Close() {
	a.closeAll()
	a.base.Close()
}
