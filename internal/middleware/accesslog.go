// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package middleware

import (
	"net/http"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

// AccessLog emits one structured log line per request. Server errors
// log at warn so they stand out at the default level.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		event := logging.Debug()
		if wrapper.statusCode >= http.StatusInternalServerError {
			event = logging.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Str("request_id", GetRequestID(r.Context())).
			Msg("HTTP request")
	})
}
