// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package cache provides the in-memory data structures the swipe engine
// builds on: caching, deduplication, and priority ordering.
//
// The package contains:
//
//   - LRUCache: a generic LRU with TTL and O(1) operations. The media
//     layer uses it to bound the prefetch window; eviction hands the
//     displaced entry back to the caller so lower cache layers can be
//     purged in step.
//
//   - PriorityHeap: a keyed min-heap ordered by (tier rank, deck
//     position, enqueue sequence). The prefetcher drains it so personal
//     uploads always fetch before brand assets, brand before generic,
//     and ties resolve in deck order. The sequence component makes the
//     ordering a total one, so equal-priority entries pop in the order
//     they were pushed.
//
//   - BloomFilter, BloomLRU, ExactLRU: deduplication structures used to
//     filter already-shown images out of supplier refill pages. The
//     bloom variants trade a small false positive rate (a fresh image
//     occasionally skipped) for memory; they can never let a seen image
//     through twice within the TTL window.
//
//   - SlidingWindowCounter: a bucketed rolling counter backing the
//     per-connection gesture frame flood guard on the WebSocket.
//
// All structures are safe for concurrent use.
package cache
