// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package deck holds the per-session card stacks and the engine goroutines
// that own them.
//
// Session Architecture:
//
//	WebSocket / API -> inbox channel -> engine goroutine -> outbox
//	                                        |
//	                                        v
//	                          Deck + gesture.Mapper + batcher.Buffer
//
// Every session runs one engine goroutine that exclusively owns its Deck,
// gesture mapper, and batch buffer. Gesture frames, refill results, flush
// ticks, and snapshot requests all arrive through the session's inbox
// channel and are applied serially, so deck state needs no locks and
// decision order is exactly commit order. Collaborators (prefetcher,
// refiller, outbox, event bus) are reached through narrow interfaces;
// slow ones receive copies, never live deck state.
//
// The Deck itself is append-only with a monotonic current index: cards are
// never reordered and never shown twice. Refill pages are deduplicated
// against a per-user seen filter shared across the user's sessions, and a
// latched low-water check fires exactly one refill signal per crossing.
//
// The Manager tracks live sessions, hands out per-user seen filters, reaps
// idle sessions, and drains every engine through the shutdown flush path
// when the supervisor stops it.
package deck
