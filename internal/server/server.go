// Package server hosts the HTTP status server: health, version, and
// read/write access to governor usage, metrics, and policies.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core/governor"
	apperrors "github.com/netlens/netlens/internal/errors"
	"github.com/netlens/netlens/internal/observability"
	"github.com/netlens/netlens/internal/server/handlers"
	servermw "github.com/netlens/netlens/internal/server/middleware"
)

// Server represents the HTTP status server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	api    *handlers.API
}

// New creates a new HTTP server instance serving the given governor.
func New(cfg config.ServerConfig, gov *governor.Governor) *Server {
	r := chi.NewRouter()

	// Standard chi middleware
	r.Use(middleware.RealIP)

	// Custom middleware in correct order (RequestID early for correlation,
	// Recovery outermost)
	r.Use(servermw.RequestID)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		api:    handlers.NewAPI(gov),
	}

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  timeoutOr(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: timeoutOr(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  timeoutOr(s.cfg.IdleTimeout, 120*time.Second),
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.cfg.Port
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
