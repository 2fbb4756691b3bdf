// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package outbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/batcher"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// RecoveryStats reports what startup recovery found.
type RecoveryStats struct {
	OrphanedDecisions int `json:"orphaned_decisions"` // unsealed decisions from the previous run
	RecoveredBatches  int `json:"recovered_batches"`  // batches formed from them
	PendingBatches    int `json:"pending_batches"`    // sealed batches still awaiting delivery
	ParkedBatches     int `json:"parked_batches"`
}

// Recover folds decisions left unsealed by a crash into per-session
// batches (trigger shutdown) so the delivery loop picks them up. Sealed,
// undelivered batches need no handling: DueBatches already returns them.
//
// Called once at startup, before the delivery loop starts.
func (o *Outbox) Recover(ctx context.Context) (RecoveryStats, error) {
	if err := o.checkOpen(); err != nil {
		return RecoveryStats{}, err
	}

	orphans, err := o.unsealedDecisions()
	if err != nil {
		return RecoveryStats{}, err
	}

	var stats RecoveryStats
	stats.OrphanedDecisions = len(orphans)

	// Group by session, preserving sequence (= commit) order within each.
	bySession := make(map[string][]storedDecision)
	var order []string
	for _, sd := range orphans {
		if _, seen := bySession[sd.Decision.SessionID]; !seen {
			order = append(order, sd.Decision.SessionID)
		}
		bySession[sd.Decision.SessionID] = append(bySession[sd.Decision.SessionID], sd)
	}
	sort.Strings(order)

	now := o.now()
	for _, sessionID := range order {
		group := bySession[sessionID]
		decisions := make([]models.Decision, len(group))
		seqs := make([]uint64, len(group))
		for i, sd := range group {
			decisions[i] = sd.Decision
			seqs[i] = sd.Seq
		}

		sb := batcher.SealedBatch{
			Batch: models.DecisionBatch{
				BatchID:   uuid.New(),
				SessionID: sessionID,
				UserID:    group[0].Decision.UserID,
				Decisions: decisions,
				Trigger:   models.TriggerShutdown,
				SealedAt:  now,
			},
			Seqs: seqs,
		}
		if err := o.SealBatch(ctx, sb); err != nil {
			return stats, fmt.Errorf("recover session %s: %w", sessionID, err)
		}
		stats.RecoveredBatches++

		// Seal times inside one recovery pass must stay distinct so the
		// batch keys do, and so delivery order follows session order.
		now = now.Add(time.Nanosecond)
	}

	s, err := o.Stats()
	if err != nil {
		return stats, err
	}
	stats.PendingBatches = s.PendingBatches
	stats.ParkedBatches = s.ParkedBatches

	if stats.OrphanedDecisions > 0 || stats.PendingBatches > 0 {
		logging.Info().
			Int("orphaned_decisions", stats.OrphanedDecisions).
			Int("recovered_batches", stats.RecoveredBatches).
			Int("pending_batches", stats.PendingBatches).
			Int("parked_batches", stats.ParkedBatches).
			Msg("OUTBOX: Recovery complete")
	}
	return stats, nil
}

// unsealedDecisions returns every dec/ record in sequence order.
func (o *Outbox) unsealedDecisions() ([]storedDecision, error) {
	var out []storedDecision
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixDecision)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sd storedDecision
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &sd)
			}); err != nil {
				return err
			}
			out = append(out, sd)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan unsealed decisions: %w", err)
	}
	return out, nil
}
