package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-reasoner.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Routing     RoutingConfig     `yaml:"routing"`
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Deployment-wide secret the credential encryption key is derived from.
	// The server refuses to start without it.
	Secret string `yaml:"-" env:"REASONER_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_reasoner"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Knowledge store backends.
const (
	KnowledgeBackendPostgres = "postgres"
	KnowledgeBackendSQLite   = "sqlite"
)

// KnowledgeConfig selects the embedding store.
type KnowledgeConfig struct {
	// Backend is "postgres" (pgvector) or "sqlite" (on-device store).
	Backend    string `yaml:"backend" env:"KNOWLEDGE_BACKEND" env-default:"postgres"`
	SQLitePath string `yaml:"sqlite_path" env:"KNOWLEDGE_SQLITE_PATH" env-default:"knowledge.db"`
}

// Embedding generator kinds.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderGemini = "gemini"
)

// MaxEmbeddingBatchSize is the largest batch sent to an embedding backend in one call.
const MaxEmbeddingBatchSize = 100

// EmbeddingConfig describes the embedding generator.
// The "openai" provider also covers OpenAI-compatible local servers (Ollama, LM Studio).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" env:"EMBEDDING_PROVIDER" env-default:"openai"`
	BaseURL    string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS" env-default:"1536"`
	BatchSize  int    `yaml:"batch_size" env:"EMBEDDING_BATCH_SIZE" env-default:"100"`
	APIKey     string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
}

// RetrievalConfig tunes knowledge search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k" env:"RETRIEVAL_TOP_K" env-default:"5"`
	// Global scope casts a wider net than subject scope.
	GlobalThreshold  float64 `yaml:"global_threshold" env:"RETRIEVAL_GLOBAL_THRESHOLD" env-default:"0.30"`
	SubjectThreshold float64 `yaml:"subject_threshold" env:"RETRIEVAL_SUBJECT_THRESHOLD" env-default:"0.50"`
}

// RoutingConfig controls provider selection.
type RoutingConfig struct {
	// StrictPrivacy refuses to route privacy-mode or high-sensitivity requests
	// to a networked provider when no local provider is loaded.
	StrictPrivacy bool `yaml:"strict_privacy" env:"ROUTING_STRICT_PRIVACY" env-default:"false"`
	// AttemptTimeout bounds each non-streaming provider call so that a hung
	// primary still leaves time for the fallback. Zero disables it.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"ROUTING_ATTEMPT_TIMEOUT" env-default:"60s"`
}

// EnforcementConfig holds progressive discipline thresholds.
type EnforcementConfig struct {
	SecondWarningMinPoints int `yaml:"second_warning_min_points" env:"ENFORCEMENT_SECOND_WARNING_MIN_POINTS" env-default:"100"`
	ThirdWarningMinPoints  int `yaml:"third_warning_min_points" env:"ENFORCEMENT_THIRD_WARNING_MIN_POINTS" env-default:"200"`
	MeetingThreshold       int `yaml:"meeting_threshold" env:"ENFORCEMENT_MEETING_THRESHOLD" env-default:"3"`
}

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. Without a config file, environment variables and
// defaults are used. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
// The deployment secret is checked where the secret store is built,
// so commands that never touch credentials still work without it.
func (c *Config) Validate() error {
	switch c.Knowledge.Backend {
	case KnowledgeBackendPostgres, KnowledgeBackendSQLite:
	default:
		return fmt.Errorf("knowledge.backend must be %q or %q, got %q",
			KnowledgeBackendPostgres, KnowledgeBackendSQLite, c.Knowledge.Backend)
	}

	switch c.Embedding.Provider {
	case EmbeddingProviderOpenAI, EmbeddingProviderGemini:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q",
			EmbeddingProviderOpenAI, EmbeddingProviderGemini, c.Embedding.Provider)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > MaxEmbeddingBatchSize {
		return fmt.Errorf("embedding.batch_size must be between 1 and %d, got %d",
			MaxEmbeddingBatchSize, c.Embedding.BatchSize)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	for name, v := range map[string]float64{
		"retrieval.global_threshold":  c.Retrieval.GlobalThreshold,
		"retrieval.subject_threshold": c.Retrieval.SubjectThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}

	if c.Routing.AttemptTimeout < 0 {
		return fmt.Errorf("routing.attempt_timeout must not be negative, got %s", c.Routing.AttemptTimeout)
	}

	if c.Enforcement.MeetingThreshold < 1 {
		return fmt.Errorf("enforcement.meeting_threshold must be at least 1, got %d", c.Enforcement.MeetingThreshold)
	}
	if c.Enforcement.SecondWarningMinPoints < 0 || c.Enforcement.ThirdWarningMinPoints < 0 {
		return fmt.Errorf("enforcement point floors must not be negative")
	}

	return nil
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// HasSecret reports whether the deployment secret is set.
func (c *Config) HasSecret() bool {
	return strings.TrimSpace(c.Secret) != ""
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns the postgres:// URL golang-migrate expects.
func (c *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
