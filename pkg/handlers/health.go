// Package handlers serves the reasoner's operational HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/config"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
)

// healthCheckTimeout bounds the dependency checks behind /health.
const healthCheckTimeout = 3 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderLister returns the loaded AI providers.
type ProviderLister interface {
	Providers(ctx context.Context) ([]llm.ProviderInfo, error)
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Providers int    `json:"providers"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check, ping and metrics endpoints.
type HealthHandler struct {
	cfg       *config.Config
	db        Pinger
	providers ProviderLister
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and providers may be nil
// when the process runs without them; gatherer nil disables /metrics.
func NewHealthHandler(cfg *config.Config, db Pinger, providers ProviderLister, gatherer prometheus.Gatherer, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		db:        db,
		providers: providers,
		gatherer:  gatherer,
		logger:    logger.Named("health"),
	}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// Health handles GET /health. It returns 503 when the database is unreachable.
// Missing providers only degrade the status: reasoning fails but enforcement
// history and configuration remain available.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Database health check failed", zap.String("error", logging.SanitizeError(err)))
			resp.Status = "unavailable"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	if h.providers != nil {
		infos, err := h.providers.Providers(ctx)
		resp.Providers = len(infos)
		if (err != nil || len(infos) == 0) && status == http.StatusOK {
			resp.Status = "degraded"
		}
	}

	h.writeJSON(w, status, resp)
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-reasoner",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	})
}

func (h *HealthHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
