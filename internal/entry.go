// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultlinks/internal/api"
	"github.com/starford/vaultlinks/internal/cachestore"
	"github.com/starford/vaultlinks/internal/sse"
	"github.com/starford/vaultlinks/internal/worker"
)

// NewLogger builds the JSON logger used by every command.
func NewLogger(level slog.Level, out io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the offline cache worker in front of the configured origin.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}

	// Initialize structured JSON logger.
	logger := NewLogger(cfg.App.LogLevel, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("origin", cfg.Worker.Origin),
		slog.String("version", cfg.Worker.Version),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	origin, err := cfg.Worker.OriginURL()
	if err != nil {
		return err
	}

	// Initialize SQLite cache storage.
	db, err := cachestore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init cache storage: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	w, err := worker.New(worker.Config{
		Origin:      origin,
		CachePrefix: cfg.Worker.CachePrefix,
		Version:     cfg.Worker.Version,
		Precache:    cfg.Worker.Precache,
	},
		db,
		worker.WithHTTPClient(&http.Client{Timeout: cfg.Worker.FetchTimeout}),
		worker.WithPublisher(broker),
		worker.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}
	defer w.Close()

	controlRouter := api.NewRouter(w, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if w.State() != worker.StateActivated {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(rw, `{"status":%q}`, w.State())
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})

	// Mount control routes under /__worker.
	r.Mount("/__worker", controlRouter)

	// Everything else goes through the worker.
	r.Handle("/*", w)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}
	// SSE streams never go idle; end them so Shutdown can drain.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Install runs while the server already passes requests through.
	g.Go(func() error {
		if err := w.Install(gCtx); err != nil {
			logger.Error("worker install failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		var err error
		if app.listener != nil {
			logger.Info("Starting HTTP server", slog.String("address", app.listener.Addr().String()))
			err = httpServer.Serve(app.listener)
		} else {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

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
