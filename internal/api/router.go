// Package api provides the HTTP API for SkyAware.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/skyaware/skyaware/internal/api/handler"
	"github.com/skyaware/skyaware/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger  zerolog.Logger
	Tracer  trace.Tracer
	Metrics *middleware.Metrics

	AQIService handler.AQIService
	Ops        handler.OpsHandlerConfig

	// TokenValidator guards /v1/ops/status.
	TokenValidator middleware.TokenValidator

	// QueryRateLimit is the per-IP request budget per minute for /v1/aqi
	// (default: 120).
	QueryRateLimit int

	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)           // Generate/propagate request ID first
	r.Use(middleware.Tracing(cfg.Tracer)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind the load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	aqiHandler := handler.NewAQIHandler(cfg.AQIService, cfg.Logger)
	opsHandler := handler.NewOpsHandler(cfg.Ops)

	queryLimit := cfg.QueryRateLimit
	if queryLimit <= 0 {
		queryLimit = 120
	}

	r.Route("/v1", func(r chi.Router) {
		// AQI queries (public), rate limited per IP
		r.Route("/aqi", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.PerMinute(queryLimit)))
			r.Get("/latest", aqiHandler.Latest)
			r.Get("/nearest", aqiHandler.Nearest)
			r.Get("/cell", aqiHandler.Cell)
			r.Get("/locations", aqiHandler.Locations)
			r.Get("/geojson", aqiHandler.GeoJSON)
		})

		// Ops endpoints; status requires a service token
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			if cfg.TokenValidator != nil {
				r.With(
					middleware.RateLimitByIP(middleware.OpsRateLimit),
					middleware.ServiceToken(cfg.TokenValidator),
				).Get("/status", opsHandler.SystemStatus)
			}
		})
	})

	return r
}
