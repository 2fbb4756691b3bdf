// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/events"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// DecisionStore is the slice of Store the appender needs.
type DecisionStore interface {
	InsertDecisions(ctx context.Context, decisions []models.Decision) (int, error)
	UpsertSessionStart(ctx context.Context, info models.SessionInfo) error
	CloseSession(ctx context.Context, info models.SessionInfo, endedAt time.Time) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Appender buffers decision events from the bus and writes them to the
// archive in batches, on size or interval. Flushes are serialized so a
// tick and a size trigger cannot interleave inserts.
type Appender struct {
	store DecisionStore
	cfg   config.AnalyticsConfig

	mu     sync.Mutex
	buffer []models.Decision
}

// NewAppender builds an appender over store.
func NewAppender(store DecisionStore, cfg config.AnalyticsConfig) (*Appender, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.AppendBatch <= 0 {
		cfg.AppendBatch = 100
	}
	if cfg.AppendFlush <= 0 {
		cfg.AppendFlush = 5 * time.Second
	}
	return &Appender{
		store:  store,
		cfg:    cfg,
		buffer: make([]models.Decision, 0, cfg.AppendBatch),
	}, nil
}

// Register attaches the appender's consumers to the event router.
// Session lifecycle rows are written through immediately; decisions go
// through the buffer.
func (a *Appender) Register(router *events.Router) {
	router.AddConsumer("archive-decisions", events.TopicDecisionCommitted,
		func(ctx context.Context, msg *message.Message) error {
			var evt events.DecisionEvent
			if err := events.Decode(msg, &evt); err != nil {
				return fmt.Errorf("decode decision event: %w", err)
			}
			a.Append(ctx, evt.Decision)
			return nil
		})
	router.AddConsumer("archive-session-start", events.TopicSessionStarted,
		func(ctx context.Context, msg *message.Message) error {
			var evt events.SessionEvent
			if err := events.Decode(msg, &evt); err != nil {
				return fmt.Errorf("decode session event: %w", err)
			}
			return a.store.UpsertSessionStart(ctx, evt.Info)
		})
	router.AddConsumer("archive-session-end", events.TopicSessionEnded,
		func(ctx context.Context, msg *message.Message) error {
			var evt events.SessionEvent
			if err := events.Decode(msg, &evt); err != nil {
				return fmt.Errorf("decode session event: %w", err)
			}
			// Decisions for this session may still sit in the buffer;
			// flush so the session row and its rows land together.
			if err := a.Flush(ctx); err != nil {
				return err
			}
			return a.store.CloseSession(ctx, evt.Info, time.Now().UTC())
		})
}

// Append buffers one decision, flushing when the batch size is reached.
func (a *Appender) Append(ctx context.Context, d models.Decision) {
	a.mu.Lock()
	a.buffer = append(a.buffer, d)
	full := len(a.buffer) >= a.cfg.AppendBatch
	a.mu.Unlock()

	if full {
		if err := a.Flush(ctx); err != nil {
			logging.Error().Err(err).Msg("Archive flush failed")
		}
	}
}

// Flush writes the buffered decisions. On failure the batch is put
// back at the head of the buffer for the next attempt.
func (a *Appender) Flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	batch := a.buffer
	a.buffer = make([]models.Decision, 0, a.cfg.AppendBatch)
	a.mu.Unlock()

	inserted, err := a.store.InsertDecisions(ctx, batch)
	if err != nil {
		a.mu.Lock()
		a.buffer = append(batch, a.buffer...)
		a.mu.Unlock()
		return fmt.Errorf("flush %d decisions: %w", len(batch), err)
	}

	logging.Debug().
		Int("flushed", len(batch)).
		Int("inserted", inserted).
		Msg("Archive flush")
	return nil
}

// BufferLen reports the current buffer depth.
func (a *Appender) BufferLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// Serve drives interval flushes and retention pruning until ctx is
// canceled, then flushes what remains. Implements the supervisor
// service contract.
func (a *Appender) Serve(ctx context.Context) error {
	flushTick := time.NewTicker(a.cfg.AppendFlush)
	defer flushTick.Stop()

	var pruneTick <-chan time.Time
	if a.cfg.RetentionDays > 0 {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		pruneTick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := a.Flush(flushCtx)
			cancel()
			if err != nil {
				logging.Error().Err(err).Msg("Final archive flush failed")
			}
			return ctx.Err()
		case <-flushTick.C:
			if err := a.Flush(ctx); err != nil {
				logging.Error().Err(err).Msg("Archive flush failed")
			}
		case <-pruneTick:
			cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays)
			removed, err := a.store.PruneBefore(ctx, cutoff)
			if err != nil {
				logging.Error().Err(err).Msg("Archive prune failed")
				continue
			}
			if removed > 0 {
				logging.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("Archive pruned")
			}
		}
	}
}

func (a *Appender) String() string { return "analytics-appender" }
