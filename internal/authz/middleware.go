// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package authz

import (
	"net/http"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/auth"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

// Middleware enforces role-based authorization on HTTP requests.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// AuthorizeRequest derives the action from the HTTP method and
// authorizes the authenticated role against the request path. Requests
// with no claims on the context use the default role.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := ""
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
			role = claims.Role
		}

		allowed, err := m.enforcer.EnforceRole(role, r.URL.Path, methodToAction(r.Method))
		if err != nil {
			logging.Error().Err(err).Str("path", r.URL.Path).Msg("Authorization error")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// methodToAction maps HTTP methods to policy actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
