// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package batcher

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Config holds batching thresholds.
type Config struct {
	Size          int           // decisions per batch before a size flush
	FlushInterval time.Duration // max age of a non-empty buffer before an interval flush
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Size:          10,
		FlushInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Size <= 0 {
		c.Size = d.Size
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	return c
}

// PendingDecision pairs a decision with the outbox sequence of its durable
// copy. The sequence travels with the decision so sealing can identify
// which outbox records fold into the batch.
type PendingDecision struct {
	Seq      uint64
	Decision models.Decision
}

// SealedBatch is a flushed batch plus the outbox sequences it absorbed.
// The outbox deletes the per-decision records and writes the batch record
// in one transaction.
type SealedBatch struct {
	Batch models.DecisionBatch
	Seqs  []uint64
}

// Stats is a point-in-time view of a buffer's activity.
type Stats struct {
	Appended int64 // decisions accepted since creation
	Sealed   int64 // decisions moved into sealed batches
	Batches  int64 // batches sealed
	Pending  int   // decisions currently buffered
}

// Buffer accumulates one session's decisions until a flush trigger seals
// them. Not safe for concurrent use: the owning session goroutine is the
// only caller.
type Buffer struct {
	cfg       Config
	sessionID string
	userID    string
	now       func() time.Time

	pending  []PendingDecision
	oldestAt time.Time

	appended int64
	sealed   int64
	batches  int64
}

// NewBuffer creates a buffer for one session. Zero or negative config
// fields fall back to production defaults.
func NewBuffer(sessionID, userID string, cfg Config) *Buffer {
	cfg = cfg.withDefaults()
	return &Buffer{
		cfg:       cfg,
		sessionID: sessionID,
		userID:    userID,
		now:       time.Now,
		pending:   make([]PendingDecision, 0, cfg.Size),
	}
}

// Append accepts a decision into the buffer. When the buffer reaches the
// batch size it seals and returns the batch; otherwise the return is nil.
// Invalid decisions are rejected without changing the buffer.
func (b *Buffer) Append(p PendingDecision) (*SealedBatch, error) {
	if err := p.Decision.Validate(); err != nil {
		return nil, fmt.Errorf("append decision: %w", err)
	}

	if len(b.pending) == 0 {
		b.oldestAt = b.now()
	}
	b.pending = append(b.pending, p)
	b.appended++

	if len(b.pending) >= b.cfg.Size {
		return b.seal(models.TriggerSize), nil
	}
	return nil, nil
}

// FlushIfExpired seals a non-empty buffer whose oldest decision has waited
// at least the flush interval. The engine calls this on its tick; most
// calls return nil.
func (b *Buffer) FlushIfExpired() *SealedBatch {
	if len(b.pending) == 0 {
		return nil
	}
	if b.now().Sub(b.oldestAt) < b.cfg.FlushInterval {
		return nil
	}
	return b.seal(models.TriggerInterval)
}

// FlushShutdown seals whatever is buffered, or returns nil when empty.
// Called on session end and engine shutdown so partial batches are never
// dropped.
func (b *Buffer) FlushShutdown() *SealedBatch {
	if len(b.pending) == 0 {
		return nil
	}
	return b.seal(models.TriggerShutdown)
}

// Len returns the number of buffered decisions.
func (b *Buffer) Len() int {
	return len(b.pending)
}

// Stats returns activity counters for the session stats endpoint.
func (b *Buffer) Stats() Stats {
	return Stats{
		Appended: b.appended,
		Sealed:   b.sealed,
		Batches:  b.batches,
		Pending:  len(b.pending),
	}
}

// seal moves every pending decision into a fresh batch. The returned batch
// owns copies; the buffer is reusable immediately.
func (b *Buffer) seal(trigger models.FlushTrigger) *SealedBatch {
	decisions := make([]models.Decision, len(b.pending))
	seqs := make([]uint64, len(b.pending))
	for i, p := range b.pending {
		decisions[i] = p.Decision
		seqs[i] = p.Seq
	}

	b.sealed += int64(len(b.pending))
	b.batches++
	b.pending = b.pending[:0]

	return &SealedBatch{
		Batch: models.DecisionBatch{
			BatchID:   uuid.New(),
			SessionID: b.sessionID,
			UserID:    b.userID,
			Decisions: decisions,
			Trigger:   trigger,
			SealedAt:  b.now(),
		},
		Seqs: seqs,
	}
}
