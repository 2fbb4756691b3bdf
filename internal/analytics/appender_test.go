// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted [][]models.Decision
	failNext bool
	closed   []string
}

func (f *fakeStore) InsertDecisions(ctx context.Context, decisions []models.Decision) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return 0, errors.New("archive unavailable")
	}
	batch := make([]models.Decision, len(decisions))
	copy(batch, decisions)
	f.inserted = append(f.inserted, batch)
	return len(decisions), nil
}

func (f *fakeStore) UpsertSessionStart(ctx context.Context, info models.SessionInfo) error {
	return nil
}

func (f *fakeStore) CloseSession(ctx context.Context, info models.SessionInfo, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, info.ID)
	return nil
}

func (f *fakeStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) batches() [][]models.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserted
}

func TestAppenderFlushesAtBatchSize(t *testing.T) {
	store := &fakeStore{}
	a, err := NewAppender(store, config.AnalyticsConfig{AppendBatch: 3, AppendFlush: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		a.Append(ctx, testDecision("item", "sess-1", "user-1", models.DirectionAccept, models.TierGeneric, now))
	}
	if got := len(store.batches()); got != 0 {
		t.Fatalf("flushes before batch size = %d, want 0", got)
	}

	a.Append(ctx, testDecision("item", "sess-1", "user-1", models.DirectionAccept, models.TierGeneric, now))
	batches := store.batches()
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("batches = %d, want one batch of 3", len(batches))
	}
	if a.BufferLen() != 0 {
		t.Errorf("BufferLen() = %d after flush, want 0", a.BufferLen())
	}
}

func TestAppenderRebuffersOnFailure(t *testing.T) {
	store := &fakeStore{failNext: true}
	a, err := NewAppender(store, config.AnalyticsConfig{AppendBatch: 100, AppendFlush: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	a.Append(ctx, testDecision("item-1", "sess-1", "user-1", models.DirectionAccept, models.TierGeneric, now))
	a.Append(ctx, testDecision("item-2", "sess-1", "user-1", models.DirectionReject, models.TierGeneric, now))

	if err := a.Flush(ctx); err == nil {
		t.Fatal("Flush() error = nil, want failure")
	}
	if a.BufferLen() != 2 {
		t.Fatalf("BufferLen() after failed flush = %d, want 2", a.BufferLen())
	}

	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() retry error = %v", err)
	}
	batches := store.batches()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches after retry = %+v, want one batch of 2", batches)
	}
	if batches[0][0].ItemID != "item-1" {
		t.Errorf("first retried item = %q, want item-1 (order preserved)", batches[0][0].ItemID)
	}
}

func TestAppenderServeFlushesOnIntervalAndShutdown(t *testing.T) {
	store := &fakeStore{}
	a, err := NewAppender(store, config.AnalyticsConfig{AppendBatch: 100, AppendFlush: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Serve(ctx)
		close(done)
	}()

	now := time.Now().UTC()
	a.Append(ctx, testDecision("item-1", "sess-1", "user-1", models.DirectionAccept, models.TierGeneric, now))

	deadline := time.After(2 * time.Second)
	for len(store.batches()) == 0 {
		select {
		case <-deadline:
			t.Fatal("interval flush never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Buffered work at shutdown is flushed before Serve returns.
	a.Append(ctx, testDecision("item-2", "sess-1", "user-1", models.DirectionReject, models.TierGeneric, now))
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	total := 0
	for _, b := range store.batches() {
		total += len(b)
	}
	if total != 2 {
		t.Errorf("total flushed = %d, want 2", total)
	}
}
