package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/netlens/netlens/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/version", handlers.VersionHandler)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/usage", s.api.Usage)
		r.Get("/usage/{service}", s.api.ServiceUsage)
		r.Get("/metrics", s.api.Metrics)
		r.Get("/metrics/{service}", s.api.ServiceMetrics)
		r.Post("/metrics/reset", s.api.ResetMetrics)
		r.Get("/policies", s.api.Policies)
		r.Get("/policies/{service}", s.api.ServicePolicy)
		r.Put("/policies/{service}", s.api.SetPolicy)
	})
}
