// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package auth

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

type contextKey string

// ClaimsContextKey holds the authenticated *Claims on the request context.
const ClaimsContextKey contextKey = "claims"

// AdminKeyHeader carries the operator key on admin endpoints.
const AdminKeyHeader = "X-Admin-Key"

// Middleware enforces session-token and admin-key authentication.
type Middleware struct {
	jwtManager *JWTManager
	admin      *AdminVerifier
	authMode   string
}

// NewMiddleware creates the authentication middleware. authMode "none"
// bypasses session checks entirely; admin endpoints still require the
// key when one is configured.
func NewMiddleware(jwtManager *JWTManager, admin *AdminVerifier, authMode string) *Middleware {
	return &Middleware{
		jwtManager: jwtManager,
		admin:      admin,
		authMode:   authMode,
	}
}

// RequireSession enforces a valid Bearer session token on the request.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == "none" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Session token rejected")
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin enforces operator access. A valid X-Admin-Key header is
// always sufficient; a session token with the admin role also passes.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(AdminKeyHeader); key != "" {
			if err := m.admin.Verify(key); err == nil {
				next.ServeHTTP(w, r.WithContext(adminContext(r.Context())))
				return
			}
			logging.Warn().Str("path", r.URL.Path).Msg("Admin key rejected")
			writeForbidden(w, "invalid admin key")
			return
		}

		if m.authMode == "none" {
			next.ServeHTTP(w, r.WithContext(adminContext(r.Context())))
			return
		}

		if token, ok := bearerToken(r); ok {
			claims, err := m.jwtManager.ValidateToken(token)
			if err == nil && claims.Role == models.RoleAdmin {
				ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		writeForbidden(w, "admin access required")
	})
}

// adminContext attaches synthetic admin claims for key-authenticated
// requests, so role checks downstream see the admin role.
func adminContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, &Claims{Role: models.RoleAdmin})
}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusForbidden, "forbidden", message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Fixed shape, marshalling cannot fail.
	_ = json.NewEncoder(w).Encode(models.APIError{Code: code, Message: message})
}
