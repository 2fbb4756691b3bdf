// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/auth"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/authz"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/middleware"
)

// RouterDeps collects everything the HTTP surface needs.
type RouterDeps struct {
	Config  *config.Config
	Handler *Handler
	Auth    *auth.Middleware
	Authz   *authz.Middleware
	Latency *middleware.LatencyMonitor
}

// NewRouter assembles the chi mux. Middleware order matters: request ID
// and recovery wrap everything, auth and authorization gate /api/v1,
// the stats cache sits inside the admin gate so only authorized
// responses are cached.
func NewRouter(deps RouterDeps) http.Handler {
	cfg := deps.Config
	h := deps.Handler

	cm := NewChiMiddleware(cfg.API, cfg.Security.RateLimitDisabled)
	sc, err := newStatsCache(cfg.API.StatsCacheTTL)
	if err != nil {
		// Stats responses are still served, just uncached.
		logging.Warn().Err(err).Msg("API: Stats cache unavailable")
		sc = nil
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cm.CORS())
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
	if deps.Latency != nil {
		r.Use(deps.Latency.Middleware)
	}
	r.Use(chimiddleware.Compress(5, "application/json"))

	// Probes sit outside auth; keep their limit permissive.
	r.Group(func(r chi.Router) {
		r.Use(cm.RateLimitHealth())
		r.Get("/api/v1/health", h.Health)
		r.Get("/api/v1/health/live", h.HealthLive)
		r.Get("/api/v1/health/ready", h.HealthReady)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cm.RateLimit())

		// Session create is the only unauthenticated mutation: it is
		// where the token comes from.
		r.Group(func(r chi.Router) {
			r.Use(cm.RateLimitSessionCreate())
			r.Post("/sessions", h.CreateSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireSession)
			r.Use(deps.Authz.AuthorizeRequest)

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/deck", h.GetDeck)
				r.Post("/release", h.Release)
				r.Get("/stats", h.SessionStats)
				r.Get("/ws", h.WebSocketSession)
				r.Delete("/", h.DeleteSession)
			})

			r.Get("/media/{itemID}", h.Media)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)
			r.Use(deps.Authz.AuthorizeRequest)

			r.Route("/stats", func(r chi.Router) {
				if sc != nil {
					r.Use(sc.Middleware)
				}
				r.Get("/overview", h.StatsOverview)
				r.Get("/tiers", h.StatsTiers)
				r.Get("/hesitation", h.StatsHesitation)
				r.Get("/timeline", h.StatsTimeline)
				r.Get("/latency", h.StatsLatency)
			})

			r.Route("/outbox", func(r chi.Router) {
				r.Get("/status", h.OutboxStatus)
				r.Post("/replay", h.OutboxReplay)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("no such endpoint: " + req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	return r
}
