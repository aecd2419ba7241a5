package api

import (
	"net/http"

	"cockpit/internal/health"
	"cockpit/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Coordinator   Coordinator
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Coordinator, cfg.HealthChecker)

	r := chi.NewRouter()

	// Outermost first
	r.Use(RecoveryMiddleware())
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())

	// Probes - no auth required
	r.Get("/ping", handler.Ping)
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))
		r.Get("/start", handler.Start)
		r.Get("/progress", handler.Progress)
		r.Get("/output", handler.Output)
		r.Get("/error", handler.Error)
		r.Get("/kill", handler.Kill)
	})

	return r
}
