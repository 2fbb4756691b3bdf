// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package prefetch keeps upcoming card media warm ahead of the viewer.
//
// Sessions report window movement; the orchestrator turns uncached window
// items into queue entries ordered by (tier rank, deck position, enqueue
// sequence). The ordering is total, so pop order is deterministic:
// personalized content overtakes earlier generic content for bandwidth,
// and within a tier the deck order wins. Workers re-check an entry
// against the session's live index before fetching: a card the user
// already swiped past is dropped, never fetched speculatively. Fetches
// already in flight when a card scrolls out are left to complete and
// populate the cache.
package prefetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/media"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Config tunes the prefetch pool.
type Config struct {
	Workers int
	// FetchTimeout bounds one prefetch; distinct from the fetcher's own
	// HTTP timeout so a rate-limiter wait also counts against it.
	FetchTimeout time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		FetchTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	return c
}

// task is one queued fetch.
type task struct {
	sessionID string
	item      models.ContentItem
	position  int
}

// taskKey namespaces queue entries per session so two sessions showing
// the same item each track their own window position.
func taskKey(sessionID, itemID string) string {
	return sessionID + "/" + itemID
}

// Orchestrator is the prefetch scheduler. It implements the deck
// engine's Prefetcher dependency and runs its worker pool as a
// supervised service.
type Orchestrator struct {
	cfg     Config
	fetcher *media.Fetcher

	queue *cache.PriorityHeap[task]
	seq   atomic.Uint64

	mu       sync.Mutex
	indexes  map[string]int      // live currentIndex per session
	inFlight map[string]struct{} // item IDs being fetched

	wake chan struct{}
}

// New creates the orchestrator over a shared media fetcher.
func New(cfg Config, fetcher *media.Fetcher) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		fetcher:  fetcher,
		queue:    cache.NewPriorityHeap[task](),
		indexes:  make(map[string]int),
		inFlight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// WindowChanged enqueues every uncached, not-in-flight item of the new
// window. Called inline by session engines; must not block.
func (o *Orchestrator) WindowChanged(sessionID string, currentIndex int, window []models.ContentItem) {
	o.mu.Lock()
	o.indexes[sessionID] = currentIndex
	o.mu.Unlock()

	queued := 0
	for i, item := range window {
		if o.fetcher.Cache().Cached(item.ID) {
			continue
		}
		if o.isInFlight(item.ID) {
			continue
		}
		pri := cache.Priority{
			Rank:     item.Tier.Rank(),
			Position: currentIndex + i,
			Seq:      o.seq.Add(1),
		}
		// Push reprioritizes existing entries in place, so a window item
		// whose position shifted is not queued twice.
		o.queue.Push(taskKey(sessionID, item.ID), task{
			sessionID: sessionID,
			item:      item,
			position:  currentIndex + i,
		}, pri)
		queued++
	}

	metrics.PrefetchQueueDepth.Set(float64(o.queue.Len()))
	if queued > 0 {
		o.wakeWorkers()
	}
}

// SessionEnded drops the session's index and its queued work. In-flight
// fetches complete and populate the cache for possible reuse.
func (o *Orchestrator) SessionEnded(sessionID string) {
	o.mu.Lock()
	delete(o.indexes, sessionID)
	o.mu.Unlock()

	for _, entry := range o.queue.All() {
		if entry.Value.sessionID == sessionID {
			o.queue.Remove(entry.Key)
		}
	}
	metrics.PrefetchQueueDepth.Set(float64(o.queue.Len()))
}

// QueueLen reports the current queue depth.
func (o *Orchestrator) QueueLen() int {
	return o.queue.Len()
}

// String implements fmt.Stringer for supervisor logs.
func (o *Orchestrator) String() string {
	return "prefetch-pool"
}

// Serve implements suture.Service: runs the worker pool until the
// context is canceled.
func (o *Orchestrator) Serve(ctx context.Context) error {
	logging.Info().
		Int("workers", o.cfg.Workers).
		Msg("PREFETCH: Pool started")

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			o.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

// worker pops the most urgent task, revalidates it, fetches, repeats.
// An empty queue parks the worker on the wake channel with a poll
// fallback.
func (o *Orchestrator) worker(ctx context.Context, id int) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		entry := o.queue.Pop()
		if entry == nil {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
			case <-ticker.C:
			}
			continue
		}
		metrics.PrefetchQueueDepth.Set(float64(o.queue.Len()))

		t := entry.Value
		if !o.stillAhead(t) {
			metrics.PrefetchFetchesTotal.WithLabelValues("stale").Inc()
			continue
		}
		o.fetch(ctx, id, t)

		if ctx.Err() != nil {
			return
		}
	}
}

// stillAhead reports whether the task's card is still at or past the
// session's current index. Sessions that ended fail the check.
func (o *Orchestrator) stillAhead(t task) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx, ok := o.indexes[t.sessionID]
	return ok && t.position >= idx
}

func (o *Orchestrator) isInFlight(itemID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[itemID]
	return ok
}

func (o *Orchestrator) fetch(ctx context.Context, workerID int, t task) {
	o.mu.Lock()
	if _, dup := o.inFlight[t.item.ID]; dup {
		o.mu.Unlock()
		return
	}
	o.inFlight[t.item.ID] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inFlight, t.item.ID)
		o.mu.Unlock()
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	n, err := o.fetcher.Prefetch(fetchCtx, t.item)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Best-effort: a failed prefetch leaves the item to an on-demand
		// load with a placeholder, it never blocks the deck.
		logging.Debug().Err(err).
			Int("worker", workerID).
			Str("session_id", t.sessionID).
			Str("item_id", t.item.ID).
			Str("tier", string(t.item.Tier)).
			Msg("PREFETCH: Fetch failed")
		return
	}

	if n > 0 {
		logging.Debug().
			Int("worker", workerID).
			Str("session_id", t.sessionID).
			Str("item_id", t.item.ID).
			Str("tier", string(t.item.Tier)).
			Int("position", t.position).
			Int("bytes", n).
			Msg("PREFETCH: Cached")
	}
}

func (o *Orchestrator) wakeWorkers() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
