// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/nordmark/raido/internal/api"
	"github.com/nordmark/raido/internal/mcpserver"
	"github.com/nordmark/raido/internal/orchestrator"
	"github.com/nordmark/raido/internal/sse"
	"github.com/nordmark/raido/internal/store"
	"github.com/nordmark/raido/internal/vault"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	provider, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	orchOpts := []orchestrator.Option{
		orchestrator.WithNotify(broker.PublishVaultEvent),
		orchestrator.WithDebounce(cfg.Autosave.Debounce()),
	}

	// Optional SQLite mirror of the derived snapshot.
	var mirror *store.DB
	if cfg.SQLite.Enabled() {
		mirror, err = store.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init snapshot mirror: %w", err)
		}
		defer mirror.Close()
		orchOpts = append(orchOpts, orchestrator.WithMirror(mirror))
	}

	orch := orchestrator.New(provider, logger, orchOpts...)

	// Initial scan and derivation.
	if err := orch.Rescan(ctx); err != nil {
		logger.Warn("initial rescan failed", slog.String("error", err.Error()))
	}

	// Build API router.
	apiRouter := api.NewRouter(orch, provider, mirror, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start vault watcher: external edits trigger a rescan + refresh.
	g.Go(func() error {
		if err := orchestrator.Watch(gCtx, orch, cfg.Vault.Path, logger); err != nil {
			return fmt.Errorf("vault watcher error: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server. Logs go to stderr so stdout stays
// clean for the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	provider, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	var mirror *store.DB
	if cfg.SQLite.Enabled() {
		mirror, err = store.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init snapshot mirror: %w", err)
		}
		defer mirror.Close()
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithDebounce(cfg.Autosave.Debounce()),
	}
	if mirror != nil {
		orchOpts = append(orchOpts, orchestrator.WithMirror(mirror))
	}
	orch := orchestrator.New(provider, logger, orchOpts...)

	if err := orch.Rescan(ctx); err != nil {
		logger.Warn("initial rescan failed", slog.String("error", err.Error()))
	}

	logger.Info("Starting MCP server on stdio", slog.String("vault_path", cfg.Vault.Path))
	srv := mcpserver.New(orch, provider, mirror)
	return srv.ServeStdio()
}
