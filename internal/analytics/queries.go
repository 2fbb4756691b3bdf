// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
)

// Overview summarizes the archive for the stats dashboard.
type Overview struct {
	TotalDecisions int64   `json:"total_decisions"`
	TotalAccepts   int64   `json:"total_accepts"`
	AcceptRate     float64 `json:"accept_rate"`
	UniqueUsers    int64   `json:"unique_users"`
	TotalSessions  int64   `json:"total_sessions"`
	ActiveSessions int64   `json:"active_sessions"`
}

// TierStats breaks accept behavior down by content tier.
type TierStats struct {
	Tier          string  `json:"tier"`
	Decisions     int64   `json:"decisions"`
	Accepts       int64   `json:"accepts"`
	AcceptRate    float64 `json:"accept_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// HesitationStats carries hesitation-time percentiles per direction,
// in milliseconds.
type HesitationStats struct {
	Direction string  `json:"direction"`
	Count     int64   `json:"count"`
	P50       float64 `json:"p50_ms"`
	P90       float64 `json:"p90_ms"`
	P99       float64 `json:"p99_ms"`
}

// TimelineBucket is one hourly slice of decision volume.
type TimelineBucket struct {
	Hour       time.Time `json:"hour"`
	Decisions  int64     `json:"decisions"`
	Accepts    int64     `json:"accepts"`
	AcceptRate float64   `json:"accept_rate"`
}

// SessionSummary is the archived view of one session.
type SessionSummary struct {
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Decisions  int64      `json:"decisions"`
	Accepts    int64      `json:"accepts"`
	AcceptRate float64    `json:"accept_rate"`
}

// QueryFilter narrows archive queries. Zero values mean unbounded.
type QueryFilter struct {
	UserID string
	Since  time.Time
	Until  time.Time
}

func (f QueryFilter) clauses() (string, []interface{}) {
	where := ""
	var args []interface{}
	if f.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Since.IsZero() {
		where += " AND decided_at >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		where += " AND decided_at < ?"
		args = append(args, f.Until.UTC())
	}
	return where, args
}

// GetOverview returns the archive-wide rollup.
func (s *Store) GetOverview(ctx context.Context, filter QueryFilter) (o Overview, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "decisions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := filter.clauses()
	row := s.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE direction = 'accept'),
			COUNT(DISTINCT user_id),
			COUNT(DISTINCT session_id)
		FROM decisions WHERE 1=1`+where, args...)
	if err = row.Scan(&o.TotalDecisions, &o.TotalAccepts, &o.UniqueUsers, &o.TotalSessions); err != nil {
		return o, fmt.Errorf("query overview: %w", err)
	}
	if o.TotalDecisions > 0 {
		o.AcceptRate = float64(o.TotalAccepts) / float64(o.TotalDecisions)
	}

	row = s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL`)
	if err = row.Scan(&o.ActiveSessions); err != nil {
		return o, fmt.Errorf("query active sessions: %w", err)
	}
	return o, nil
}

// GetTierStats returns per-tier accept rates, best tier first.
func (s *Store) GetTierStats(ctx context.Context, filter QueryFilter) (stats []TierStats, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "decisions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := filter.clauses()
	rows, err := s.conn.QueryContext(ctx, `
		SELECT
			tier,
			COUNT(*) AS decision_count,
			COUNT(*) FILTER (WHERE direction = 'accept') AS accepts,
			AVG(confidence) AS avg_confidence
		FROM decisions WHERE 1=1`+where+`
		GROUP BY tier
		ORDER BY CAST(accepts AS DOUBLE) / decision_count DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tier stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t TierStats
		if err = rows.Scan(&t.Tier, &t.Decisions, &t.Accepts, &t.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan tier stats: %w", err)
		}
		if t.Decisions > 0 {
			t.AcceptRate = float64(t.Accepts) / float64(t.Decisions)
		}
		stats = append(stats, t)
	}
	return stats, rows.Err()
}

// GetHesitationStats returns hesitation percentiles split by direction.
// Long hesitation before an accept reads differently to the preference
// model than an instant flick, so the split matters.
func (s *Store) GetHesitationStats(ctx context.Context, filter QueryFilter) (stats []HesitationStats, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "decisions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := filter.clauses()
	rows, err := s.conn.QueryContext(ctx, `
		SELECT
			direction,
			COUNT(*),
			quantile_cont(hesitation_ms, 0.50),
			quantile_cont(hesitation_ms, 0.90),
			quantile_cont(hesitation_ms, 0.99)
		FROM decisions WHERE 1=1`+where+`
		GROUP BY direction
		ORDER BY direction`, args...)
	if err != nil {
		return nil, fmt.Errorf("query hesitation stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var h HesitationStats
		if err = rows.Scan(&h.Direction, &h.Count, &h.P50, &h.P90, &h.P99); err != nil {
			return nil, fmt.Errorf("scan hesitation stats: %w", err)
		}
		stats = append(stats, h)
	}
	return stats, rows.Err()
}

// GetTimeline returns hourly decision volume, oldest bucket first.
func (s *Store) GetTimeline(ctx context.Context, filter QueryFilter) (buckets []TimelineBucket, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "decisions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := filter.clauses()
	rows, err := s.conn.QueryContext(ctx, `
		SELECT
			date_trunc('hour', decided_at) AS hour,
			COUNT(*) AS decisions,
			COUNT(*) FILTER (WHERE direction = 'accept') AS accepts
		FROM decisions WHERE 1=1`+where+`
		GROUP BY hour
		ORDER BY hour`, args...)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var b TimelineBucket
		if err = rows.Scan(&b.Hour, &b.Decisions, &b.Accepts); err != nil {
			return nil, fmt.Errorf("scan timeline: %w", err)
		}
		if b.Decisions > 0 {
			b.AcceptRate = float64(b.Accepts) / float64(b.Decisions)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetSessionSummary returns the archived view of one session, or
// sql.ErrNoRows if the session never reached the archive.
func (s *Store) GetSessionSummary(ctx context.Context, sessionID string) (sum SessionSummary, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "sessions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var endedAt sql.NullTime
	row := s.conn.QueryRowContext(ctx, `
		SELECT session_id, user_id, started_at, ended_at, decisions, accepts
		FROM sessions WHERE session_id = ?`, sessionID)
	if err = row.Scan(&sum.SessionID, &sum.UserID, &sum.StartedAt, &endedAt, &sum.Decisions, &sum.Accepts); err != nil {
		return sum, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		sum.EndedAt = &t
	}
	if sum.Decisions > 0 {
		sum.AcceptRate = float64(sum.Accepts) / float64(sum.Decisions)
	}
	return sum, nil
}
