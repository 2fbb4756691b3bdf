// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Consumer delivers one sealed batch to the preference consumer. A nil
// error acknowledges the batch. Errors satisfying PermanentError park the
// batch immediately instead of scheduling a retry.
type Consumer interface {
	Deliver(ctx context.Context, batch models.DecisionBatch) error
}

// PermanentError marks delivery failures that retrying cannot fix, such
// as a 4xx rejection of the payload itself.
type PermanentError interface {
	error
	Permanent() bool
}

// isPermanent walks the error chain for a PermanentError reporting true.
func isPermanent(err error) bool {
	var pe PermanentError
	return errors.As(err, &pe) && pe.Permanent()
}

// DeliveredSink is notified after a batch is acknowledged, for event
// fan-out. Must not block.
type DeliveredSink interface {
	BatchDelivered(batch models.DecisionBatch, attempts int)
}

// Deliverer drains the outbox toward the consumer: one batch in flight at
// a time, oldest seal first, exponential backoff per batch. Delivery is
// FIFO per session: a failed batch holds back that session's later
// batches until it is delivered or parked. Runs as a supervised service.
type Deliverer struct {
	outbox   *Outbox
	consumer Consumer
	sink     DeliveredSink // optional
}

// NewDeliverer creates the delivery loop. sink may be nil.
func NewDeliverer(o *Outbox, consumer Consumer, sink DeliveredSink) *Deliverer {
	return &Deliverer{outbox: o, consumer: consumer, sink: sink}
}

// String implements fmt.Stringer for supervisor logs.
func (d *Deliverer) String() string {
	return "outbox-deliverer"
}

// Serve implements suture.Service. Polls for due batches until the
// context is canceled.
func (d *Deliverer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(d.outbox.cfg.PollInterval)
	defer ticker.Stop()

	logging.Info().
		Dur("poll_interval", d.outbox.cfg.PollInterval).
		Int("max_attempts", d.outbox.cfg.MaxAttempts).
		Msg("DELIVERY: Loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.deliverDue(ctx); err != nil {
				if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
					return err
				}
				logging.Error().Err(err).Msg("DELIVERY: Pass failed")
			}
		}
	}
}

// deliverDue attempts every batch currently due, in seal order. A failed
// attempt does not stop the pass, but it does block the rest of that
// session's batches: they must wait for the failed one, or FIFO per
// session breaks. Other sessions keep their independent backoff clocks.
func (d *Deliverer) deliverDue(ctx context.Context) error {
	due, err := d.outbox.DueBatches(time.Now(), 0)
	if err != nil {
		return err
	}

	blocked := make(map[string]bool)
	for _, rec := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if blocked[rec.Batch.SessionID] {
			continue
		}
		if !d.attempt(ctx, rec) {
			blocked[rec.Batch.SessionID] = true
		}
	}
	return nil
}

// attempt delivers one batch and records the outcome. Reports whether
// the batch is resolved (delivered or parked); a false return means it
// stays pending and the session's later batches must keep waiting.
func (d *Deliverer) attempt(ctx context.Context, rec BatchRecord) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, d.outbox.cfg.DeliveryTimeout)
	start := time.Now()
	err := d.consumer.Deliver(attemptCtx, rec.Batch)
	cancel()
	elapsed := time.Since(start)

	if err == nil {
		metrics.RecordDeliveryAttempt("success", elapsed)
		if markErr := d.outbox.MarkDelivered(ctx, rec); markErr != nil {
			// The consumer has the batch; the record will be retried and
			// deduplicated by batch ID on the consumer side.
			logging.Error().Err(markErr).
				Str("batch_id", rec.Batch.BatchID.String()).
				Msg("DELIVERY: Delivered batch not recorded")
			return false
		}
		if d.sink != nil {
			d.sink.BatchDelivered(rec.Batch, rec.Attempts+1)
		}
		logging.Info().
			Str("batch_id", rec.Batch.BatchID.String()).
			Str("session_id", rec.Batch.SessionID).
			Int("decisions", len(rec.Batch.Decisions)).
			Int("attempts", rec.Attempts+1).
			Dur("elapsed", elapsed).
			Msg("DELIVERY: Batch delivered")
		return true
	}

	permanent := isPermanent(err)
	result := "retryable"
	if permanent {
		result = "permanent"
	}
	metrics.RecordDeliveryAttempt(result, elapsed)

	updated, markErr := d.outbox.MarkFailed(ctx, rec, err, permanent)
	if markErr != nil {
		logging.Error().Err(markErr).
			Str("batch_id", rec.Batch.BatchID.String()).
			Msg("DELIVERY: Failure not recorded")
		return false
	}

	evt := logging.Warn()
	if updated.Parked {
		evt = logging.Error()
	}
	evt.Err(err).
		Str("batch_id", rec.Batch.BatchID.String()).
		Str("session_id", rec.Batch.SessionID).
		Int("attempts", updated.Attempts).
		Bool("parked", updated.Parked).
		Time("next_attempt_at", updated.NextAttemptAt).
		Msg("DELIVERY: Batch delivery failed")
	return updated.Parked
}

// Compactor prunes delivered batches on a timer. Runs as a supervised
// service in the data layer.
type Compactor struct {
	outbox *Outbox
}

// NewCompactor creates the compaction loop.
func NewCompactor(o *Outbox) *Compactor {
	return &Compactor{outbox: o}
}

// String implements fmt.Stringer for supervisor logs.
func (c *Compactor) String() string {
	return "outbox-compactor"
}

// Serve implements suture.Service.
func (c *Compactor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.outbox.cfg.CompactionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.outbox.CompactOnce(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				logging.Error().Err(err).Msg("OUTBOX: Compaction failed")
			}
		}
	}
}
