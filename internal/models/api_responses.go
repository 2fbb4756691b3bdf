// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package models

import (
	"time"
)

// APIResponse is the standardized envelope returned by every HTTP endpoint.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "SESSION_NOT_FOUND",
//	    "message": "unknown session",
//	    "details": {"session_id": "..."}
//	  },
//	  "metadata": {"timestamp": "2026-08-21T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response observability fields: generation time, query
// duration for analytics endpoints, and whether the response came from the
// short-TTL stats cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError carries a machine-readable code plus human-readable context.
//
// Common codes:
//   - VALIDATION_ERROR: invalid input parameters
//   - SESSION_NOT_FOUND: unknown or expired session
//   - DECK_EXHAUSTED: release received with no active card
//   - MEDIA_UNAVAILABLE: item bytes not cached and origin fetch failed
//   - AUTHENTICATION_ERROR: invalid/missing token
//   - AUTHORIZATION_ERROR: insufficient role
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
