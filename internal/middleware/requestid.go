// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package middleware provides HTTP middleware for request tracking,
// access logging, latency monitoring, and Prometheus instrumentation.
// Authentication and authorization middleware live in internal/auth
// and internal/authz.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// RequestID assigns each request a unique ID, echoing an upstream
// X-Request-ID when the proxy already set one. The ID doubles as the
// correlation ID for log lines emitted while handling the request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = logging.ContextWithRequestID(ctx, requestID)
		ctx = logging.ContextWithCorrelationID(ctx, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
