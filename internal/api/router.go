// Package api provides the HTTP API over the forecast query façade.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/api/handler"
	"github.com/aqforecast/aqforecast/internal/api/middleware"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Service     *forecast.Service
	Registry    *resilience.Registry
	RequireTLS  bool

	// Worker reports the background refresh schedule. Optional.
	Worker handler.WorkerStatus

	// RefreshRateLimit overrides middleware.RefreshRateLimit.
	RefreshRateLimit *middleware.RateLimitConfig

	// Now picks the default time slot (default: time.Now).
	Now func() time.Time
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aqforecast"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Service, cfg.Registry, cfg.Worker)
	forecastHandler := handler.NewForecastHandler(cfg.Service, cfg.Now)
	metadataHandler := handler.NewMetadataHandler()

	refreshLimit := middleware.RefreshRateLimit
	if cfg.RefreshRateLimit != nil {
		refreshLimit = *cfg.RefreshRateLimit
	}
	refreshRateLimit := middleware.RateLimitByIP(refreshLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.With(refreshRateLimit, middleware.RequireJSON).Post("/refresh", forecastHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)

			r.Get("/metadata/enums", metadataHandler.GetEnums)
			r.Get("/sources", forecastHandler.ListSources)
			r.Get("/forecast", forecastHandler.GetForecast)
			r.Get("/markers", forecastHandler.Markers)
			r.Get("/classify", forecastHandler.Classify)

			r.Route("/sites/{source}/{site}", func(r chi.Router) {
				r.Get("/value", forecastHandler.SiteValue)
				r.Get("/series", forecastHandler.SiteSeries)
				r.Get("/hourly", forecastHandler.SiteHourly)
			})
		})
	})

	return r
}
