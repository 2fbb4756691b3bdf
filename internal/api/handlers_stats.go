// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/analytics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/middleware"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/outbox"
)

// StatsSource answers the operator analytics queries. Satisfied by
// analytics.Store.
type StatsSource interface {
	GetOverview(ctx context.Context, filter analytics.QueryFilter) (analytics.Overview, error)
	GetTierStats(ctx context.Context, filter analytics.QueryFilter) ([]analytics.TierStats, error)
	GetHesitationStats(ctx context.Context, filter analytics.QueryFilter) ([]analytics.HesitationStats, error)
	GetTimeline(ctx context.Context, filter analytics.QueryFilter) ([]analytics.TimelineBucket, error)
	GetSessionSummary(ctx context.Context, sessionID string) (analytics.SessionSummary, error)
	Ping(ctx context.Context) error
}

// LatencySource reports in-process request latency percentiles.
// Satisfied by middleware.LatencyMonitor.
type LatencySource interface {
	Stats() []middleware.EndpointStats
}

// OutboxSource exposes the durable decision store's operator surface.
// Satisfied by outbox.Outbox.
type OutboxSource interface {
	Stats() (outbox.Stats, error)
	ParkedBatches() ([]outbox.BatchRecord, error)
	ReplayParked(ctx context.Context) (int, error)
}

// ReadyCheck is one readiness probe; name identifies the subsystem.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// statsFilter parses the shared analytics query parameters.
// since/until accept RFC 3339.
func statsFilter(r *http.Request) (analytics.QueryFilter, error) {
	f := analytics.QueryFilter{UserID: r.URL.Query().Get("user_id")}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Until = t
	}
	return f, nil
}

func (h *Handler) statsQuery(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, f analytics.QueryFilter) (interface{}, error)) {
	rw := NewResponseWriter(w, r)
	if h.stats == nil {
		rw.ServiceUnavailable("analytics disabled")
		return
	}
	filter, err := statsFilter(r)
	if err != nil {
		rw.BadRequest("invalid since/until timestamp: " + err.Error())
		return
	}
	data, err := run(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("API: Analytics query failed")
		rw.InternalError("analytics query failed")
		return
	}
	rw.Success(data)
}

// StatsOverview returns volume, accept rate, and user counts.
func (h *Handler) StatsOverview(w http.ResponseWriter, r *http.Request) {
	h.statsQuery(w, r, func(ctx context.Context, f analytics.QueryFilter) (interface{}, error) {
		return h.stats.GetOverview(ctx, f)
	})
}

// StatsTiers breaks accept rate down per content tier.
func (h *Handler) StatsTiers(w http.ResponseWriter, r *http.Request) {
	h.statsQuery(w, r, func(ctx context.Context, f analytics.QueryFilter) (interface{}, error) {
		return h.stats.GetTierStats(ctx, f)
	})
}

// StatsHesitation returns hesitation-time percentiles per direction.
func (h *Handler) StatsHesitation(w http.ResponseWriter, r *http.Request) {
	h.statsQuery(w, r, func(ctx context.Context, f analytics.QueryFilter) (interface{}, error) {
		return h.stats.GetHesitationStats(ctx, f)
	})
}

// StatsTimeline returns hourly decision volume buckets.
func (h *Handler) StatsTimeline(w http.ResponseWriter, r *http.Request) {
	h.statsQuery(w, r, func(ctx context.Context, f analytics.QueryFilter) (interface{}, error) {
		return h.stats.GetTimeline(ctx, f)
	})
}

// StatsLatency returns per-endpoint request latency from the in-process
// sliding window.
func (h *Handler) StatsLatency(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.latency == nil {
		rw.ServiceUnavailable("latency monitoring disabled")
		return
	}
	rw.Success(map[string]interface{}{"endpoints": h.latency.Stats()})
}

// OutboxStatus returns outbox counters and the parked batch list.
func (h *Handler) OutboxStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.outbox == nil {
		rw.ServiceUnavailable("outbox disabled")
		return
	}
	stats, err := h.outbox.Stats()
	if err != nil {
		rw.InternalError("outbox stats failed: " + err.Error())
		return
	}
	parked, err := h.outbox.ParkedBatches()
	if err != nil {
		rw.InternalError("outbox parked scan failed: " + err.Error())
		return
	}
	rw.Success(map[string]interface{}{"stats": stats, "parked": parked})
}

// OutboxReplay requeues every parked batch for delivery.
func (h *Handler) OutboxReplay(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.outbox == nil {
		rw.ServiceUnavailable("outbox disabled")
		return
	}
	replayed, err := h.outbox.ReplayParked(r.Context())
	if err != nil {
		rw.InternalError("outbox replay failed: " + err.Error())
		return
	}
	logging.Info().Int("replayed", replayed).Msg("API: Parked batches replayed")
	rw.Success(map[string]interface{}{"replayed": replayed})
}

type healthCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string        `json:"status"`
	Version  string        `json:"version,omitempty"`
	Sessions int           `json:"active_sessions"`
	Checks   []healthCheck `json:"checks,omitempty"`
}

// Health reports overall service health with per-subsystem checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	resp := healthResponse{
		Status:   "healthy",
		Version:  h.version,
		Sessions: len(h.manager.Sessions()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, check := range h.ready {
		hc := healthCheck{Name: check.Name, Status: "ok"}
		if err := check.Check(ctx); err != nil {
			hc.Status = "failing"
			hc.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Checks = append(resp.Checks, hc)
	}

	if resp.Status != "healthy" {
		rw.writeJSON(http.StatusServiceUnavailable, APIResponse{Success: false, Data: resp, Meta: rw.meta()})
		return
	}
	rw.Success(resp)
}

// HealthLive is the liveness probe: the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: all subsystem checks must pass.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, check := range h.ready {
		if err := check.Check(ctx); err != nil {
			rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, check.Name+": "+err.Error())
			return
		}
	}
	rw.Success(map[string]string{"status": "ready"})
}
