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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pagetree/internal/api"
	"github.com/starford/pagetree/internal/exportservice"
	"github.com/starford/pagetree/internal/index"
	"github.com/starford/pagetree/internal/mcpserver"
	"github.com/starford/pagetree/internal/sse"
	"github.com/starford/pagetree/internal/storage"
	"github.com/starford/pagetree/internal/watcher"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger initializes the structured JSON logger.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("input", cfg.Export.Input),
		slog.String("output_dir", cfg.Export.OutputDir),
		slog.String("base_url", cfg.Export.BaseURL),
		slog.Int("workers", cfg.Export.Workers),
		slog.String("on_duplicate", cfg.Export.OnDuplicate),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return logger
}

// openService prepares the output directory and, when configured, the export
// index. The returned close func releases the index.
func (a *application) openService(logger *slog.Logger, indexRequired bool, extra ...exportservice.Option) (*exportservice.Service, func(), error) {
	cfg := a.config
	for _, w := range cfg.Export.Warnings() {
		logger.Warn(w)
	}

	if !a.dryRun {
		if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	var store storage.Provider
	if fs, err := storage.NewFS(cfg.Export.OutputDir); err == nil {
		store = fs
	} else if !a.dryRun {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	closeFn := func() {}
	svcOpts := append([]exportservice.Option{exportservice.WithLogger(logger)}, extra...)

	if path := cfg.IndexPath(indexRequired); path != "" {
		db, err := index.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("init index: %w", err)
		}
		logger.Info("Export index opened", slog.String("path", path))
		closeFn = func() { _ = db.Close() }
		svcOpts = append(svcOpts, exportservice.WithIndex(db))
	}

	svc := exportservice.NewService(cfg.Export.Input, store, cfg.Export.Options(a.dryRun), svcOpts...)
	return svc, closeFn, nil
}

func logSummary(logger *slog.Logger, sum *exportservice.Summary) {
	if sum.Skipped {
		logger.Info("Export skipped, input unchanged", slog.String("checksum", sum.Checksum))
		return
	}
	attrs := []any{
		slog.String("status", sum.Status),
		slog.String("checksum", sum.Checksum),
	}
	if sum.Report != nil {
		attrs = append(attrs,
			slog.Int("groups", len(sum.Report.Groups)),
			slog.Int("records", sum.Report.RecordCount()),
			slog.Int("skipped_roots", len(sum.Report.Skipped)),
			slog.Duration("elapsed", sum.Report.Finished.Sub(sum.Report.Started)))
	}
	logger.Info("Export finished", attrs...)
}

// RunExport performs a single export of the configured input document.
func RunExport(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stdout)

	svc, closeFn, err := app.openService(logger, false)
	if err != nil {
		return err
	}
	defer closeFn()

	sum, err := svc.Export(ctx, app.force)
	if sum != nil {
		logSummary(logger, sum)
	}
	return err
}

// RunServe exports the input, re-exports it whenever the file changes and
// serves the export index over HTTP until a shutdown signal arrives.
func RunServe(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stdout)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, closeFn, err := app.openService(logger, true, exportservice.WithEvents(broker.PublishExportEvent))
	if err != nil {
		return err
	}
	defer closeFn()

	var ready atomic.Bool

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
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"exporting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; SSE lives at /api/events behind auth.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Initial export, then re-export on every change of the input file.
	g.Go(func() error {
		sum, err := svc.Export(gCtx, false)
		if sum != nil {
			logSummary(logger, sum)
		}
		if err != nil {
			logger.Warn("initial export failed", slog.String("error", err.Error()))
		}
		ready.Store(true)

		err = watcher.Watch(gCtx, cfg.Export.Input, watcher.DefaultDebounce, logger, func(path string) {
			sum, err := svc.Export(gCtx, false)
			if sum != nil {
				logSummary(logger, sum)
			}
			if err != nil {
				logger.Warn("re-export failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the export tools over MCP stdio. Logs go to stderr since
// stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	svc, closeFn, err := app.openService(logger, true)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.Info("Starting MCP server on stdio")
	return mcpserver.New(svc, app.version).ServeStdio()
}
