package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentryview/sentryview/internal/ratelimit"
	"github.com/sentryview/sentryview/internal/tokens"
)

type Handlers struct {
	Events        *EventHandler
	Cameras       *CameraHandler
	Notifications *NotificationHandler
	Health        *HealthHandler
	WS            *WSHandler

	Limiter  *ratelimit.Limiter
	APILimit ratelimit.Limit
}

// NewRouter assembles the HTTP surface. Everything under /api/v1 except the
// websocket upgrade requires a bearer token; the upgrade authenticates via
// query parameter inside the handler.
func NewRouter(h Handlers, mgr *tokens.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health.Check)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(h.Limiter, h.APILimit))
		r.Get("/ws", h.WS.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(Auth(mgr))
			r.Get("/events", h.Events.List)
			r.Get("/events/{id}", h.Events.Get)
			r.Post("/events/{id}/reanalyze", h.Events.Reanalyze)
			r.Get("/cameras", h.Cameras.List)
			r.Get("/notifications", h.Notifications.List)
		})
	})

	return r
}
