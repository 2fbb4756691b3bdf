// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package cache

import (
	"sync"
	"time"
)

// SlidingWindowCounter counts events over a rolling time window. Time is
// divided into buckets on a circular buffer; the window count is the sum
// of the live buckets, so old events age out one bucket at a time
// instead of all at once.
//
// The WebSocket client uses one per connection to bound inbound gesture
// frame rates.
//
// Increment is O(1), Count is O(buckets), memory is O(buckets).
type SlidingWindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	windowSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

// NewSlidingWindowCounter creates a counter over windowSize split into
// numBuckets buckets. NewSlidingWindowCounter(time.Second, 10) tracks
// the last second in 100ms buckets.
func NewSlidingWindowCounter(windowSize time.Duration, numBuckets int) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if windowSize <= 0 {
		windowSize = time.Second
	}

	return &SlidingWindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		windowSize: windowSize,
		numBuckets: numBuckets,
		lastUpdate: time.Now(),
	}
}

// Increment adds delta to the current bucket.
func (sw *SlidingWindowCounter) Increment(delta int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance()
	sw.buckets[sw.current] += delta
}

// IncrementOne adds 1 to the current bucket.
func (sw *SlidingWindowCounter) IncrementOne() {
	sw.Increment(1)
}

// Count returns the number of events inside the window.
func (sw *SlidingWindowCounter) Count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance()

	var total int64
	for _, count := range sw.buckets {
		total += count
	}
	return total
}

// Reset clears all buckets.
func (sw *SlidingWindowCounter) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for i := range sw.buckets {
		sw.buckets[i] = 0
	}
	sw.current = 0
	sw.lastUpdate = time.Now()
}

// advance rotates past expired buckets. Caller holds the lock.
func (sw *SlidingWindowCounter) advance() {
	now := time.Now()
	bucketsElapsed := int(now.Sub(sw.lastUpdate) / sw.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= sw.numBuckets {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
		sw.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			sw.current = (sw.current + 1) % sw.numBuckets
			sw.buckets[sw.current] = 0
		}
	}

	sw.lastUpdate = now
}
