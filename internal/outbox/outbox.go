// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/batcher"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

var (
	// ErrClosed is returned by operations on a closed outbox.
	ErrClosed = errors.New("outbox closed")

	// ErrBatchNotFound is returned when a batch key does not exist.
	ErrBatchNotFound = errors.New("outbox: batch not found")
)

// Key prefixes. Decision keys sort by sequence, batch keys by seal time,
// so prefix scans return both in commit/seal order.
const (
	prefixDecision = "dec/"
	prefixBatch    = "batch/"
)

// storedDecision is the durable form of one unsealed decision.
type storedDecision struct {
	Seq      uint64          `json:"seq"`
	Decision models.Decision `json:"decision"`
}

// BatchRecord is a sealed batch plus its delivery bookkeeping.
type BatchRecord struct {
	Batch models.DecisionBatch `json:"batch"`

	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`

	// Parked means delivery gave up: MaxAttempts exhausted or the
	// consumer rejected the batch permanently. Parked batches are kept
	// until an operator replays or compaction (never) removes them.
	Parked bool `json:"parked"`

	Delivered   bool      `json:"delivered"`
	DeliveredAt time.Time `json:"delivered_at,omitempty"`
}

func (r BatchRecord) key() []byte {
	return batchKey(r.Batch.SealedAt, r.Batch.BatchID)
}

func batchKey(sealedAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixBatch, sealedAt.UnixNano(), id))
}

func decisionKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixDecision, seq))
}

// Stats is a point-in-time count of outbox contents.
type Stats struct {
	UnsealedDecisions int `json:"unsealed_decisions"`
	PendingBatches    int `json:"pending_batches"`
	ParkedBatches     int `json:"parked_batches"`
	DeliveredBatches  int `json:"delivered_batches"`
}

// Outbox is the BadgerDB-backed durable decision store. Safe for
// concurrent use; every session engine appends through the same instance.
type Outbox struct {
	db  *badger.DB
	cfg Config
	seq *badger.Sequence

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

// Open creates or reopens the outbox at cfg.Path.
func Open(cfg Config) (*Outbox, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	seq, err := db.GetSequence([]byte("outbox/seq"), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open outbox sequence: %w", err)
	}

	o := &Outbox{db: db, cfg: cfg, seq: seq, now: time.Now}
	o.refreshGauges()

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("OUTBOX: Opened")
	return o, nil
}

// Close releases the sequence and shuts the database down. Idempotent.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("OUTBOX: Sequence release failed")
	}
	return o.db.Close()
}

// Config returns the settings in effect after defaulting.
func (o *Outbox) Config() Config {
	return o.cfg
}

func (o *Outbox) checkOpen() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	return nil
}

// AppendDecision persists a decision before it enters a batch buffer.
// Returns the sequence under which the durable copy is stored; sealing
// uses it to move the decision under its batch.
func (o *Outbox) AppendDecision(ctx context.Context, d models.Decision) (uint64, error) {
	if err := o.checkOpen(); err != nil {
		return 0, err
	}
	if err := d.Validate(); err != nil {
		return 0, fmt.Errorf("append decision: %w", err)
	}

	seq, err := o.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next outbox seq: %w", err)
	}

	data, err := json.Marshal(storedDecision{Seq: seq, Decision: d})
	if err != nil {
		return 0, fmt.Errorf("marshal decision: %w", err)
	}

	err = o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(decisionKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("write decision: %w", err)
	}

	metrics.OutboxPendingDecisions.Inc()
	return seq, nil
}

// SealBatch atomically moves the batch's decisions from the unsealed
// keyspace under a single batch record. After this the batch is the unit
// of delivery and the per-decision records are gone.
func (o *Outbox) SealBatch(ctx context.Context, sb batcher.SealedBatch) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	if err := sb.Batch.Validate(); err != nil {
		return fmt.Errorf("seal batch: %w", err)
	}

	rec := BatchRecord{Batch: sb.Batch, NextAttemptAt: sb.Batch.SealedAt}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal batch record: %w", err)
	}

	err = o.db.Update(func(txn *badger.Txn) error {
		for _, seq := range sb.Seqs {
			if err := txn.Delete(decisionKey(seq)); err != nil {
				return fmt.Errorf("unseal decision %d: %w", seq, err)
			}
		}
		return txn.Set(rec.key(), data)
	})
	if err != nil {
		return fmt.Errorf("seal batch %s: %w", sb.Batch.BatchID, err)
	}

	metrics.OutboxPendingDecisions.Sub(float64(len(sb.Seqs)))
	metrics.OutboxPendingBatches.Inc()
	return nil
}

// DueBatches returns undelivered, unparked batches whose next attempt is
// at or before now, oldest seal first, up to limit (0 = no limit). A
// batch is held back while an earlier batch of the same session is in
// backoff: delivery is FIFO per session.
func (o *Outbox) DueBatches(now time.Time, limit int) ([]BatchRecord, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}

	var due []BatchRecord
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixBatch)
		// Sessions with an earlier pending batch still in backoff. Their
		// later batches are held back so a session's decisions reach the
		// consumer in seal order.
		waiting := make(map[string]bool)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec BatchRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			if rec.Delivered || rec.Parked {
				continue
			}
			if waiting[rec.Batch.SessionID] {
				continue
			}
			if rec.NextAttemptAt.After(now) {
				waiting[rec.Batch.SessionID] = true
				continue
			}
			due = append(due, rec)
			if limit > 0 && len(due) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan due batches: %w", err)
	}
	return due, nil
}

// MarkDelivered records a successful delivery. The record stays for
// DeliveredTTL so operators can inspect recent deliveries.
func (o *Outbox) MarkDelivered(ctx context.Context, rec BatchRecord) error {
	now := o.now()
	rec.Delivered = true
	rec.DeliveredAt = now
	rec.LastAttemptAt = now
	rec.Attempts++
	rec.LastError = ""
	if err := o.putRecord(rec); err != nil {
		return err
	}
	metrics.OutboxPendingBatches.Dec()
	return nil
}

// MarkFailed records a failed attempt and schedules the retry. A
// permanent failure, or exhausting MaxAttempts, parks the batch instead.
// Returns the updated record.
func (o *Outbox) MarkFailed(ctx context.Context, rec BatchRecord, deliveryErr error, permanent bool) (BatchRecord, error) {
	now := o.now()
	rec.Attempts++
	rec.LastAttemptAt = now
	rec.LastError = deliveryErr.Error()

	if permanent || rec.Attempts >= o.cfg.MaxAttempts {
		rec.Parked = true
		metrics.OutboxPendingBatches.Dec()
		metrics.OutboxParkedBatches.Inc()
	} else {
		rec.NextAttemptAt = now.Add(o.cfg.backoff(rec.Attempts))
	}

	if err := o.putRecord(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// ParkedBatches returns every parked batch, oldest seal first.
func (o *Outbox) ParkedBatches() ([]BatchRecord, error) {
	return o.scanBatches(func(r BatchRecord) bool { return r.Parked })
}

// ReplayParked requeues every parked batch for immediate delivery with a
// fresh attempt budget. Used by the operator CLI after fixing whatever
// parked them.
func (o *Outbox) ReplayParked(ctx context.Context) (int, error) {
	parked, err := o.ParkedBatches()
	if err != nil {
		return 0, err
	}
	for i, rec := range parked {
		rec.Parked = false
		rec.Attempts = 0
		rec.LastError = ""
		rec.NextAttemptAt = o.now()
		if err := o.putRecord(rec); err != nil {
			return i, err
		}
		metrics.OutboxParkedBatches.Dec()
		metrics.OutboxPendingBatches.Inc()
	}
	return len(parked), nil
}

// Stats counts the outbox contents. A full scan; intended for the status
// endpoint and CLI, not hot paths.
func (o *Outbox) Stats() (Stats, error) {
	if err := o.checkOpen(); err != nil {
		return Stats{}, err
	}

	var s Stats
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		decPrefix := []byte(prefixDecision)
		for it.Seek(decPrefix); it.ValidForPrefix(decPrefix); it.Next() {
			s.UnsealedDecisions++
		}

		batchPrefix := []byte(prefixBatch)
		for it.Seek(batchPrefix); it.ValidForPrefix(batchPrefix); it.Next() {
			var rec BatchRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			switch {
			case rec.Delivered:
				s.DeliveredBatches++
			case rec.Parked:
				s.ParkedBatches++
			default:
				s.PendingBatches++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("outbox stats: %w", err)
	}
	return s, nil
}

// CompactOnce deletes delivered batches older than DeliveredTTL and runs
// one round of Badger value-log GC. Returns how many records it removed.
func (o *Outbox) CompactOnce(ctx context.Context) (int, error) {
	if err := o.checkOpen(); err != nil {
		return 0, err
	}

	cutoff := o.now().Add(-o.cfg.DeliveredTTL)
	var expired [][]byte
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixBatch)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec BatchRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			if rec.Delivered && rec.DeliveredAt.Before(cutoff) {
				expired = append(expired, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("compaction scan: %w", err)
	}

	for _, key := range expired {
		if err := o.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return 0, fmt.Errorf("compaction delete: %w", err)
		}
	}

	// GC returns ErrNoRewrite when there was nothing to reclaim.
	if !o.cfg.InMemory {
		if err := o.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			logging.Warn().Err(err).Msg("OUTBOX: Value log GC failed")
		}
	}

	if len(expired) > 0 {
		logging.Debug().Int("removed", len(expired)).Msg("OUTBOX: Compaction pass")
	}
	return len(expired), nil
}

func (o *Outbox) putRecord(rec BatchRecord) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal batch record: %w", err)
	}
	if err := o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rec.key(), data)
	}); err != nil {
		return fmt.Errorf("update batch %s: %w", rec.Batch.BatchID, err)
	}
	return nil
}

func (o *Outbox) scanBatches(keep func(BatchRecord) bool) ([]BatchRecord, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	var out []BatchRecord
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixBatch)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec BatchRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			if keep(rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan batches: %w", err)
	}
	return out, nil
}

// refreshGauges recomputes the pending/parked gauges from a full scan.
// Called at open so restarts report accurate numbers.
func (o *Outbox) refreshGauges() {
	s, err := o.Stats()
	if err != nil {
		return
	}
	metrics.OutboxPendingDecisions.Set(float64(s.UnsealedDecisions))
	metrics.OutboxPendingBatches.Set(float64(s.PendingBatches))
	metrics.OutboxParkedBatches.Set(float64(s.ParkedBatches))
}
