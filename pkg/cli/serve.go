package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/handlers"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/mcp"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reasoning tools over MCP",
		Long: "Serves the MCP tools on /mcp with /health, /ping and /metrics alongside. " +
			"With --stdio the tools are served on stdin/stdout instead of HTTP.",
		RunE: runServe,
	}

	cmd.Flags().Bool("stdio", false, "Serve MCP on stdin/stdout instead of HTTP")
	cmd.Flags().Bool("migrate", true, "Apply pending database migrations before serving")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	stdio, _ := cmd.Flags().GetBool("stdio")
	migrate, _ := cmd.Flags().GetBool("migrate")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := applyMigrations(ctx, a.base); err != nil {
			return err
		}
	}

	// A provider table that fails to load is not fatal: the health endpoint
	// reports it and the router retries on the first request.
	if err := a.router.Initialize(ctx); err != nil {
		a.logger.Warn("Provider registry not loaded at startup", zap.String("error", logging.SanitizeError(err)))
	}

	toolLogger := mcp.NewToolCallLogger(a.metrics, a.logger)
	mcpServer := mcp.NewServer("ekaya-reasoner", a.cfg.Version, toolLogger.Hooks(), a.logger)
	tools.RegisterAll(mcpServer.MCP(), &tools.ToolDeps{
		Orchestrator: a.orchestrator,
		Enforcement:  a.enforcement,
		Retriever:    a.retriever,
		Router:       a.router,
		Logger:       a.logger,
	}, a.cfg.Version)

	if stdio {
		return mcpServer.ServeStdio()
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.db, a.router, a.registry, a.logger).RegisterRoutes(mux)
	mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(a.logger, "/health", "/ping", "/metrics")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting ekaya-reasoner",
			zap.String("addr", srv.Addr),
			zap.String("version", a.cfg.Version),
			zap.String("env", a.cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
