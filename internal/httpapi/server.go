// Package httpapi is the control surface's HTTP layer: a thin chi router
// carrying a huma API, exposing the health probe, clock introspection, and
// harbor telemetry commands described in SPEC_FULL.md §9.4. It is a
// consumer of internal/clock and internal/harbor, not a new scheduling
// concern.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dhannyz/liquidsoap-go/internal/config"
	"github.com/dhannyz/liquidsoap-go/internal/harbor"
	"github.com/dhannyz/liquidsoap-go/internal/httpapi/middleware"
)

// Server is the control surface's HTTP server.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router, installs middleware, registers every
// operation, and returns a Server ready for Start.
func NewServer(cfg config.ServerConfig, version string, registry *harbor.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	logger = logger.With(slog.String("component", "httpapi"))

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(chimiddleware.Compress(5))

	humaConfig := huma.DefaultConfig("liquidsoapd control API", version)
	humaConfig.Info.Description = "Clock scheduler introspection and harbor ingest telemetry"
	api := humachi.New(router, humaConfig)

	NewHealthHandler(version).Register(api)
	NewClockHandler().Register(api)
	NewHarborHandler(registry).Register(api)

	return &Server{cfg: cfg, router: router, api: api, logger: logger}
}

// Router exposes the underlying chi mux for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Start begins serving and blocks until ListenAndServe returns.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting control surface", slog.String("address", s.cfg.Address()))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting control surface: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control surface: %w", err)
	}
	s.logger.Info("control surface stopped")
	return nil
}

// ListenAndServe starts the server and blocks until ctx is cancelled or
// the server errors, performing a graceful shutdown in the former case.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
