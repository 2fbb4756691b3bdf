// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package outbox is the durable delivery pipeline between the swipe engine
// and the preference consumer.
//
// Every committed decision is written here (fsync'd when sync_writes is on)
// before the deck advances, and every sealed batch is recorded here before
// delivery is attempted. The write path is two keyspaces in one BadgerDB:
//
//	dec/<seq>                      unsealed decisions, commit order
//	batch/<sealedAtNanos>/<uuid>   sealed batches awaiting delivery
//
// Sealing is atomic: the per-decision records are deleted and the batch
// record written in a single transaction, so a crash leaves each decision
// in exactly one keyspace. Startup recovery folds any unsealed decisions
// back into batches and re-queues undelivered ones.
//
// Delivery is at-least-once: the Deliverer retries each batch with
// exponential backoff until the consumer acknowledges it, parks it after
// MaxAttempts or a permanent rejection, and relies on the batch ID as the
// consumer-side idempotency key. The Compactor prunes delivered batches
// after a retention window and runs Badger value-log GC.
package outbox
