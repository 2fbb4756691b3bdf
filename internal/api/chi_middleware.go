// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
)

// ChiMiddleware builds the router's CORS and rate-limit middleware from
// config.
type ChiMiddleware struct {
	cfg      config.APIConfig
	disabled bool
	cors     func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory. rateLimitDisabled
// turns every limiter into a pass-through (tests, trusted networks).
func NewChiMiddleware(cfg config.APIConfig, rateLimitDisabled bool) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Admin-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Media-Source"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return &ChiMiddleware{cfg: cfg, disabled: rateLimitDisabled, cors: corsHandler}
}

// CORS returns the CORS handler. Global so preflights reach every route.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit is the per-IP limit applied to the general API surface.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.limit(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RateLimitSessionCreate is the stricter per-IP limit on session
// creation, which fans out to supplier fetches.
func (m *ChiMiddleware) RateLimitSessionCreate() func(http.Handler) http.Handler {
	return m.limit(m.cfg.SessionsPerMin, time.Minute)
}

// RateLimitHealth is permissive so monitoring can poll freely.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.limit(1000, time.Minute)
}

func (m *ChiMiddleware) limit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if m.disabled || requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
		}),
	)
}
