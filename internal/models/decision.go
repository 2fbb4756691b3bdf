// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decision is the core record of the system: one user's verdict on one
// content item, produced exactly once when a drag crosses the commit
// threshold.
//
// Beyond the binary direction, a decision carries the gesture telemetry the
// preference model consumes:
//   - SwipeVelocity: signed horizontal velocity at release (px/s). Sign
//     matches the direction; magnitude expresses enthusiasm.
//   - Confidence: |velocity| normalized against the calibration constant,
//     clamped to [0,1]. A flick near or above the constant scores 1.0.
//   - Hesitation: elapsed time from first touch to release. Long hesitation
//     followed by acceptance is a distinct signal from an instant flick.
//
// Decisions are buffered by the batcher and persisted to the outbox before
// the deck advances, so a crash never loses a committed swipe.
type Decision struct {
	ItemID    string    `json:"item_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Direction Direction `json:"direction"`
	Tier      Tier      `json:"tier"`

	SwipeVelocity float64       `json:"swipe_velocity"` // px/s, signed
	Confidence    float64       `json:"confidence"`     // 0.0 - 1.0
	Hesitation    time.Duration `json:"hesitation"`     // first touch to release

	DecidedAt time.Time `json:"decided_at"`
}

// Validate checks the invariants a decision must satisfy before it is
// accepted into a batch or replayed from the outbox.
func (d Decision) Validate() error {
	if strings.TrimSpace(d.ItemID) == "" {
		return fmt.Errorf("decision: empty item_id")
	}
	if strings.TrimSpace(d.SessionID) == "" {
		return fmt.Errorf("decision %s: empty session_id", d.ItemID)
	}
	if strings.TrimSpace(d.UserID) == "" {
		return fmt.Errorf("decision %s: empty user_id", d.ItemID)
	}
	if !d.Direction.Valid() {
		return fmt.Errorf("decision %s: invalid direction %q", d.ItemID, d.Direction)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("decision %s: confidence %f out of range", d.ItemID, d.Confidence)
	}
	if d.Hesitation < 0 {
		return fmt.Errorf("decision %s: negative hesitation", d.ItemID)
	}
	if d.DecidedAt.IsZero() {
		return fmt.Errorf("decision %s: zero decided_at", d.ItemID)
	}
	return nil
}

// FlushTrigger records why a batch was sealed.
type FlushTrigger string

const (
	TriggerSize     FlushTrigger = "size"     // buffer reached the batch size
	TriggerInterval FlushTrigger = "interval" // periodic flush of a partial buffer
	TriggerShutdown FlushTrigger = "shutdown" // session end or engine shutdown
)

// DecisionBatch is a sealed, ordered group of decisions awaiting delivery to
// the preference consumer. BatchID doubles as the idempotency key: the
// consumer may receive a batch more than once but must apply it at most once.
type DecisionBatch struct {
	BatchID   uuid.UUID    `json:"batch_id"`
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Decisions []Decision   `json:"decisions"` // commit order, oldest first
	Trigger   FlushTrigger `json:"trigger"`
	SealedAt  time.Time    `json:"sealed_at"`
}

// Validate checks batch-level invariants. Decisions are validated
// individually at append time; here we only verify the batch frame.
func (b DecisionBatch) Validate() error {
	if b.BatchID == uuid.Nil {
		return fmt.Errorf("batch: nil batch_id")
	}
	if strings.TrimSpace(b.SessionID) == "" {
		return fmt.Errorf("batch %s: empty session_id", b.BatchID)
	}
	if len(b.Decisions) == 0 {
		return fmt.Errorf("batch %s: no decisions", b.BatchID)
	}
	switch b.Trigger {
	case TriggerSize, TriggerInterval, TriggerShutdown:
	default:
		return fmt.Errorf("batch %s: unknown trigger %q", b.BatchID, b.Trigger)
	}
	return nil
}
