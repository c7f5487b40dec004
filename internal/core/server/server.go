package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/geoflow/internal/core/config"
	"github.com/mohammed-shakir/geoflow/internal/core/executor"
	"github.com/mohammed-shakir/geoflow/internal/core/health"
	"github.com/mohammed-shakir/geoflow/internal/core/middleware"
	"github.com/mohammed-shakir/geoflow/internal/core/router"
	"github.com/mohammed-shakir/geoflow/internal/crs"
)

// Deps carries the shared dependencies the handlers need.
type Deps struct {
	Executor    executor.Interface
	Transformer *crs.Transformer
}

// Routes assembles the full router. Split out from Run so tests can
// serve it from httptest.
func Routes(cfg config.Config, logger *slog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/wfs", router.HandleWFS(logger, deps.Executor))
	r.Get("/grid", router.HandleGrid(logger, cfg))
	r.Post("/transform", router.HandleTransform(logger, cfg, deps.Transformer))
	r.Post("/overlay", router.HandleOverlay(logger, cfg))
	r.Post("/dissolve", router.HandleDissolve(logger, cfg))
	r.Post("/simplify", router.HandleSimplify(logger, cfg))
	r.Post("/map", router.HandleMap(logger, cfg))

	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Routes(cfg, logger, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
