// Package server assembles the chi router and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/edit-recency-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/edit-recency-cache/internal/core/middleware"
	"github.com/mohammed-shakir/edit-recency-cache/internal/core/router"
)

type Options struct {
	Addr        string
	MetricsPath string
	Metrics     http.Handler
	Readiness   health.ReadinessReporter
}

// Handler builds the full route table.
func Handler(opts Options, logger *slog.Logger, api *router.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Readiness))
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}
	api.Mount(r)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, opts Options, logger *slog.Logger, api *router.API) error {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           Handler(opts, logger, api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", opts.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
