package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/alertcast/internal/api/alerts"
	"github.com/good-yellow-bee/alertcast/internal/api/middleware"
	"github.com/good-yellow-bee/alertcast/internal/session"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	var limiter *middleware.RateLimiter
	if s.config.RateLimitPerSecond > 0 {
		limiter = middleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst)
	}

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	alertHandler := alerts.NewHandler(s.store, s.logger)
	stream := alerts.NewStreamHandler(s.store, s.source, session.Config{
		PingInterval: s.config.PingInterval,
		WriteTimeout: s.config.WriteTimeout,
	}, s.config.AllowedOrigins, s.logger)

	// Viewer websocket (public)
	r.Method(http.MethodGet, "/ws/{alertID}", stream)

	r.Route("/api/v1/alerts", func(r chi.Router) {
		// Reads are public; overlays fetch their document on load.
		r.Get("/", alertHandler.List)
		r.Get("/{alertID}", alertHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(limiter))
			r.Use(middleware.BasicAuth(s.authn, s.logger))

			r.Post("/", alertHandler.Create)
			r.Put("/{alertID}", alertHandler.Update)
			r.Post("/{alertID}/ping", alertHandler.Ping)

			r.Route("/{alertID}/fields", func(r chi.Router) {
				r.Post("/", alertHandler.AddField)
				r.Patch("/by-name/{fieldName}", alertHandler.UpdateFieldByName)
				r.Patch("/{fieldID}", alertHandler.UpdateField)
				r.Put("/{fieldID}", alertHandler.ReplaceField)
				r.Delete("/{fieldID}", alertHandler.DeleteField)
			})
		})
	})

	// Legacy quick update for GET-only integrations
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(limiter))
		r.Use(middleware.BasicAuth(s.authn, s.logger))
		r.Get("/alert/{alertID}/update", alertHandler.LegacyUpdate)
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
