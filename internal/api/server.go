// Package api exposes mailing runs over HTTP for serve mode.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sheetmail/sheetmail/internal/config"
	"github.com/sheetmail/sheetmail/internal/history"
	"github.com/sheetmail/sheetmail/internal/mailer"
	"github.com/sheetmail/sheetmail/internal/pipeline"
	tlsconf "github.com/sheetmail/sheetmail/internal/tls"
)

// Mailer executes mailing runs. Satisfied by *mailer.Mailer; tests use
// a fake.
type Mailer interface {
	Execute(ctx context.Context, req mailer.RunRequest) (*history.Run, error)
	Preview(ctx context.Context, req mailer.RunRequest) ([]pipeline.Outcome, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	challenge  *http.Server
	mailer     Mailer
	store      *history.Store
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time

	// mu guards active; at most one run is in flight at a time.
	mu     sync.Mutex
	active *activeRun
}

// NewServer creates a new API server
func NewServer(m Mailer, store *history.Store, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		mailer:    m,
		store:     store,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Post("/runs", s.handleStartRun)
		r.Post("/preview", s.handlePreview)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/report", s.handleGetReport)
		r.Delete("/runs/{id}", s.handleDeleteRun)
	})
}

// ListenAndServe starts the HTTP server. When TLS is configured it
// serves HTTPS, using either certificate files or ACME issuance.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	if !s.config.TLS.Enabled {
		s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
		return s.httpServer.ListenAndServe()
	}

	if s.config.TLS.ACME.Enabled {
		acme := s.config.TLS.ACME
		manager := tlsconf.NewManager(acme.Email, acme.Domains, acme.CacheDir)
		s.httpServer.TLSConfig = manager.ServerConfig()

		// ACME HTTP-01 challenges arrive on port 80.
		s.challenge = &http.Server{
			Addr:        acme.ChallengeAddr,
			Handler:     manager.ChallengeHandler(),
			ReadTimeout: 10 * time.Second,
		}
		go func() {
			if err := s.challenge.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("ACME challenge server failed", "error", err)
			}
		}()

		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr, "domains", acme.Domains)
		return s.httpServer.ListenAndServeTLS("", "")
	}

	cfg, err := tlsconf.ServerConfig(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	if err != nil {
		return err
	}
	s.httpServer.TLSConfig = cfg

	if info, err := tlsconf.Inspect(s.config.TLS.CertFile); err == nil {
		s.logger.Info("loaded TLS certificate", "subject", info.Subject, "days_left", info.DaysLeft)
	}

	s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server and cancels any in-flight
// run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")

	s.mu.Lock()
	if s.active != nil {
		s.active.cancel()
	}
	s.mu.Unlock()

	if s.challenge != nil {
		if err := s.challenge.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to stop ACME challenge server", "error", err)
		}
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
