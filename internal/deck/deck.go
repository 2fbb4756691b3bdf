// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package deck

import (
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Deck is one session's append-only card queue. Items are only ever added
// at the tail and the current index only ever moves forward, so a card that
// has been decided (or skipped past) can never reappear.
//
// Deck is not safe for concurrent use; the owning session goroutine is the
// only caller.
type Deck struct {
	items    []models.ContentItem
	index    int
	seen     cache.SeenFilter
	lowWater int

	// refillArmed latches the low-water signal: once fired it stays down
	// until an append lifts remaining back to the mark.
	refillArmed bool
}

// AppendResult reports what happened to each item of a refill page.
type AppendResult struct {
	Added      int // appended to the deck and marked seen
	Duplicates int // dropped: already dealt to this user
	Invalid    int // dropped: failed validation
}

// NewDeck creates an empty deck. The seen filter may be nil, which
// disables cross-session deduplication (used by tests); lowWater zero or
// negative falls back to 10.
func NewDeck(lowWater int, seen cache.SeenFilter) *Deck {
	if lowWater <= 0 {
		lowWater = 10
	}
	return &Deck{
		seen:        seen,
		lowWater:    lowWater,
		refillArmed: true,
	}
}

// Append merges a refill page into the deck tail. Invalid items and items
// the user has already been dealt are dropped; the rest are appended in
// arrival order and recorded in the seen filter.
//
// The second return is the low-water signal: true when this append leaves
// remaining below the mark while the latch is armed. An append that lifts
// remaining to the mark or above re-arms the latch instead.
func (d *Deck) Append(items []models.ContentItem) (AppendResult, bool) {
	var res AppendResult
	for _, item := range items {
		if err := item.Validate(); err != nil {
			res.Invalid++
			continue
		}
		if d.seen != nil && d.seen.IsDuplicate(item.ID) {
			res.Duplicates++
			continue
		}
		d.items = append(d.items, item)
		res.Added++
	}

	if d.Remaining() >= d.lowWater {
		d.refillArmed = true
	}
	return res, d.checkLowWater()
}

// Advance moves past the current card. Returns the low-water signal, same
// contract as Append. Advancing an exhausted deck is a no-op.
func (d *Deck) Advance() bool {
	if d.index < len(d.items) {
		d.index++
	}
	return d.checkLowWater()
}

// Current returns the active card, or false when the deck is exhausted.
func (d *Deck) Current() (models.ContentItem, bool) {
	if d.index >= len(d.items) {
		return models.ContentItem{}, false
	}
	return d.items[d.index], true
}

// CurrentIndex returns the absolute position of the active card. It counts
// every card ever dealt, not just those still in the window.
func (d *Deck) CurrentIndex() int {
	return d.index
}

// Remaining returns how many cards are left at or after the current index.
func (d *Deck) Remaining() int {
	return len(d.items) - d.index
}

// Len returns the total number of cards ever appended.
func (d *Deck) Len() int {
	return len(d.items)
}

// Window copies up to n upcoming cards starting at the current index. The
// copy is safe to hand to other goroutines.
func (d *Deck) Window(n int) []models.ContentItem {
	if n <= 0 {
		return nil
	}
	end := d.index + n
	if end > len(d.items) {
		end = len(d.items)
	}
	if end <= d.index {
		return nil
	}
	window := make([]models.ContentItem, end-d.index)
	copy(window, d.items[d.index:end])
	return window
}

// checkLowWater fires at most once per crossing below the mark.
func (d *Deck) checkLowWater() bool {
	if d.Remaining() >= d.lowWater {
		return false
	}
	if !d.refillArmed {
		return false
	}
	d.refillArmed = false
	return true
}
