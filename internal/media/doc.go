// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package media stores and fetches card image bytes.
//
// The cache has two layers. L1 is Ristretto, in memory, admission-managed
// by byte cost so a large window of small thumbnails and a handful of
// full-size frames can coexist under one budget. L2 is an optional
// BadgerDB directory whose population is bounded by an LRU key index
// (eviction horizon): when an item falls off the index its Badger entry
// is deleted, which is what keeps media that scrolled far behind the
// current card from accumulating on disk.
//
// The Fetcher pulls bytes from origin through a rate limiter and a
// circuit breaker, with a hard per-request timeout. Prefetch workers and
// the on-demand media endpoint share one Fetcher so origin sees a single
// request budget.
package media
