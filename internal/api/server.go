// Package api provides the HTTP API server for the negotiation service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bithra/platform/internal/api/handlers"
	"github.com/bithra/platform/internal/api/health"
	"github.com/bithra/platform/internal/api/middleware"
	"github.com/bithra/platform/internal/auth"
	"github.com/bithra/platform/internal/negotiation"
	"github.com/bithra/platform/internal/store"
	"github.com/bithra/platform/pkg/config"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// requestTimeout bounds every non-streaming request.
const requestTimeout = 60 * time.Second

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	auth          *auth.Service
	negotiations  *handlers.NegotiationHandler
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, st store.Store, svc *negotiation.Service, authSvc *auth.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		auth:          authSvc,
		negotiations:  handlers.NewNegotiationHandler(svc, cfg.StreamPollInterval(), logger),
		config:        cfg,
		logger:        logger,
		healthChecker: health.NewChecker(st, Version),
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	r.Get("/health", s.healthChecker.Handler())

	authHandler := handlers.NewAuthHandler(s.auth, s.logger)
	r.With(chimiddleware.Timeout(requestTimeout)).Post("/auth/login", authHandler.Login)

	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
		r.Use(authMiddleware.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))
			s.negotiations.Routes(r)
		})

		// Streams outlive the request timeout.
		r.Get("/negotiations/{token}/messages/ws", s.negotiations.Stream)
	})

	s.router = r
}

// Start serves until the server is shut down. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// HTTPServer returns the underlying server for the shutdown coordinator.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Health returns the health checker so callers can register extra components.
func (s *Server) Health() *health.Checker {
	return s.healthChecker
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
