// Package httpapi provides the HTTP API for pollenwatch.
package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/httpapi/handler"
	"github.com/pollenwatch/pollenwatch/internal/httpapi/middleware"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version  string
	Logger   zerolog.Logger
	Metrics  *middleware.Metrics
	Registry *pollen.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.Registry)
	locationsHandler := handler.NewLocationsHandler(cfg.Registry)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	refreshRateLimit := middleware.RateLimitByIP(middleware.RefreshRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
		})

		r.Route("/locations", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", locationsHandler.ListLocations)
			r.Post("/", locationsHandler.CreateLocation)
			r.Route("/{locationId}", func(r chi.Router) {
				r.Get("/", locationsHandler.GetLocation)
				r.Delete("/", locationsHandler.DeleteLocation)
				r.Get("/snapshot", locationsHandler.GetSnapshot)
				r.Get("/diagnostics", locationsHandler.GetDiagnostics)
				// Manual refreshes can cost an upstream call each
				r.With(refreshRateLimit).Post("/refresh", locationsHandler.RequestRefresh)
			})
		})
	})

	return r
}
