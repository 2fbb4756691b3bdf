// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package analytics maintains the queryable decision archive in DuckDB.
// It is an observer of the bus, never on the decision path: the outbox
// holds the records of record, the archive answers operator questions
// about them.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

const queryTimeout = 30 * time.Second

// Store wraps the DuckDB connection for the decision archive.
type Store struct {
	conn *sql.DB
}

// Open connects to DuckDB at cfg.Path (":memory:" for ephemeral) and
// creates the schema.
func Open(cfg config.AnalyticsConfig) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	dsn := cfg.Path
	if dsn != ":memory:" && dsn != "" {
		maxMem := cfg.MaxMemory
		if maxMem == "" {
			maxMem = "512MB"
		}
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", cfg.Path, threads, maxMem)
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.createSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("Decision archive opened")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping reports connection health for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			item_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			tier TEXT NOT NULL,
			swipe_velocity DOUBLE NOT NULL,
			confidence DOUBLE NOT NULL,
			hesitation_ms BIGINT NOT NULL,
			decided_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			decisions INTEGER DEFAULT 0,
			accepts INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id, decided_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_tier ON decisions(tier, decided_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, started_at)`,
	}
	for _, q := range queries {
		if _, err := s.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// InsertDecisions atomically inserts a batch. Replayed decisions hit
// the primary key and are skipped, so at-least-once fan-out from the
// bus stays idempotent here.
func (s *Store) InsertDecisions(ctx context.Context, decisions []models.Decision) (inserted int, err error) {
	if len(decisions) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "decisions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decisions
			(item_id, session_id, user_id, direction, tier,
			 swipe_velocity, confidence, hesitation_ms, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range decisions {
		res, execErr := stmt.ExecContext(ctx,
			d.ItemID, d.SessionID, d.UserID, string(d.Direction), string(d.Tier),
			d.SwipeVelocity, d.Confidence, d.Hesitation.Milliseconds(), d.DecidedAt.UTC())
		if execErr != nil {
			err = fmt.Errorf("insert decision %s: %w", d.ItemID, execErr)
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert tx: %w", err)
	}
	return inserted, nil
}

// UpsertSessionStart records a new session row.
func (s *Store) UpsertSessionStart(ctx context.Context, info models.SessionInfo) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert", "sessions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`,
		info.ID, info.UserID, info.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session %s: %w", info.ID, err)
	}
	return nil
}

// CloseSession finalizes a session row with its end time and counters.
func (s *Store) CloseSession(ctx context.Context, info models.SessionInfo, endedAt time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update", "sessions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = s.conn.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = ?, decisions = ?, accepts = ?
		WHERE session_id = ?`,
		endedAt.UTC(), info.Decisions, info.Accepts, info.ID)
	if err != nil {
		return fmt.Errorf("close session %s: %w", info.ID, err)
	}
	return nil
}

// PruneBefore drops decisions and closed sessions older than cutoff.
// Returns rows removed from the decisions table.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete", "decisions", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM decisions WHERE decided_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune decisions: %w", err)
	}
	removed, _ = res.RowsAffected()

	if _, err = s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff.UTC()); err != nil {
		return removed, fmt.Errorf("prune sessions: %w", err)
	}
	return removed, nil
}
