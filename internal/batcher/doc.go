// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package batcher groups committed decisions into sealed batches for
// delivery to the preference consumer.
//
// A Buffer accumulates one session's decisions in commit order and seals
// them into a DecisionBatch when any of three triggers fires:
//   - size: the buffer reaches the configured batch size
//   - interval: a partial buffer sits longer than the flush interval
//   - shutdown: the session ends or the engine stops
//
// The Buffer is deliberately not safe for concurrent use. Each session's
// engine goroutine owns its buffer the same way it owns the deck and the
// gesture mapper; decision durability is the outbox's job, which records
// every decision before it enters the buffer and receives every sealed
// batch. The buffer therefore carries the outbox sequence of each pending
// decision so sealing can move the durable copies atomically.
package batcher
