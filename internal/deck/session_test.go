// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/batcher"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/gesture"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

type fakeLog struct {
	mu        sync.Mutex
	seq       uint64
	decisions []models.Decision
	sealed    []batcher.SealedBatch
	failNext  bool
}

func (f *fakeLog) AppendDecision(ctx context.Context, d models.Decision) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return 0, errors.New("outbox unavailable")
	}
	f.seq++
	f.decisions = append(f.decisions, d)
	return f.seq, nil
}

func (f *fakeLog) SealBatch(ctx context.Context, sb batcher.SealedBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed = append(f.sealed, sb)
	return nil
}

func (f *fakeLog) sealedBatches() []batcher.SealedBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]batcher.SealedBatch(nil), f.sealed...)
}

func (f *fakeLog) appended() []models.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Decision(nil), f.decisions...)
}

type windowCall struct {
	sessionID string
	index     int
	window    []models.ContentItem
}

type fakePrefetch struct {
	mu      sync.Mutex
	windows []windowCall
	ended   []string
}

func (f *fakePrefetch) WindowChanged(sessionID string, currentIndex int, window []models.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, windowCall{sessionID, currentIndex, window})
}

func (f *fakePrefetch) SessionEnded(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
}

func (f *fakePrefetch) lastWindow() (windowCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.windows) == 0 {
		return windowCall{}, false
	}
	return f.windows[len(f.windows)-1], true
}

type fakeRefiller struct {
	mu    sync.Mutex
	calls []int
}

func (f *fakeRefiller) RequestRefill(sessionID, userID string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, count)
}

func (f *fakeRefiller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSink struct {
	mu        sync.Mutex
	decisions []models.Decision
	batches   []models.DecisionBatch
	started   []models.SessionInfo
	ended     []models.SessionInfo
	refills   []int
}

func (f *fakeSink) DecisionCommitted(d models.Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
}

func (f *fakeSink) BatchSealed(b models.DecisionBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
}

func (f *fakeSink) SessionStarted(info models.SessionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, info)
}

func (f *fakeSink) SessionEnded(info models.SessionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, info)
}

func (f *fakeSink) DeckRefilled(sessionID string, added, remaining int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refills = append(f.refills, added)
}

type fakeHaptics struct {
	mu     sync.Mutex
	pulses []string
}

func (f *fakeHaptics) Pulse(sessionID, kind string, intensity float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulses = append(f.pulses, kind)
}

func (f *fakeHaptics) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pulses...)
}

func testItems(prefix string, n int, tier models.Tier) []models.ContentItem {
	items := make([]models.ContentItem, n)
	for i := range items {
		items[i] = models.ContentItem{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			MediaURL:  fmt.Sprintf("https://cdn.example.com/%s-%d.jpg", prefix, i),
			Tier:      tier,
			CreatedAt: time.Now().UTC(),
		}
	}
	return items
}

func testSessionConfig() Config {
	cfg := DefaultConfig()
	cfg.Lookahead = 5
	cfg.LowWaterMark = 2
	cfg.RefillBatchSize = 10
	cfg.FlushTick = 10 * time.Millisecond
	cfg.Batch = batcher.Config{Size: 3, FlushInterval: time.Hour}
	cfg.Gesture = gesture.DefaultConfig()
	return cfg
}

func startTestSession(t *testing.T, cfg Config, deps Deps, items []models.ContentItem) *Session {
	t.Helper()
	s := newSession("sess-1", "user-1", 390, cfg, deps, cache.NewExactLRU(1000, time.Hour))
	s.start()
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	if len(items) > 0 {
		if _, err := s.AppendItems(context.Background(), items); err != nil {
			t.Fatalf("AppendItems() error = %v", err)
		}
	}
	return s
}

// drag runs a full Begin/Move/Release cycle with the given final dx.
func drag(t *testing.T, s *Session, dx float64) ReleaseResult {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	if err := s.Begin(ctx, models.GestureStart{At: now}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := s.Move(ctx, models.GestureMove{DX: dx / 2, At: now}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	rr, err := s.Release(ctx, models.GestureRelease{DX: dx, VX: dx * 4, At: now})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	return rr
}

func TestReleaseCommitsAndAdvances(t *testing.T) {
	log := &fakeLog{}
	sink := &fakeSink{}
	deps := Deps{Outbox: log, Events: sink}
	s := startTestSession(t, testSessionConfig(), deps, testItems("item", 10, models.TierPersonal))

	// 390 * 0.28 = 109.2px threshold; 200px commits rightward.
	rr := drag(t, s, 200)
	if rr.Decision == nil {
		t.Fatal("Decision = nil, want committed decision")
	}
	if rr.Decision.Direction != models.DirectionAccept {
		t.Errorf("Direction = %q, want accept", rr.Decision.Direction)
	}
	if rr.Decision.ItemID != "item-0" {
		t.Errorf("ItemID = %q, want item-0", rr.Decision.ItemID)
	}
	if rr.Decision.Tier != models.TierPersonal {
		t.Errorf("Tier = %q, want personal", rr.Decision.Tier)
	}
	if rr.Snapshot.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1 after advance", rr.Snapshot.CurrentIndex)
	}

	appended := log.appended()
	if len(appended) != 1 || appended[0].ItemID != "item-0" {
		t.Fatalf("outbox decisions = %+v, want one for item-0", appended)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.decisions) != 1 {
		t.Errorf("sink decisions = %d, want 1", len(sink.decisions))
	}
}

func TestReleaseBelowThresholdSnapsBack(t *testing.T) {
	log := &fakeLog{}
	s := startTestSession(t, testSessionConfig(), Deps{Outbox: log}, testItems("item", 5, models.TierGeneric))

	rr := drag(t, s, 50)
	if rr.Decision != nil {
		t.Fatalf("Decision = %+v, want nil below threshold", rr.Decision)
	}
	if rr.Outcome.Committed {
		t.Error("Committed = true, want false")
	}
	if rr.Snapshot.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0 (no advance)", rr.Snapshot.CurrentIndex)
	}
	if len(log.appended()) != 0 {
		t.Error("outbox written on snap-back")
	}

	// The same card is dealt again.
	rr = drag(t, s, -200)
	if rr.Decision == nil || rr.Decision.ItemID != "item-0" {
		t.Fatalf("next commit = %+v, want item-0", rr.Decision)
	}
	if rr.Decision.Direction != models.DirectionReject {
		t.Errorf("Direction = %q, want reject for leftward drag", rr.Decision.Direction)
	}
}

func TestSizeTriggerSealsInCommitOrder(t *testing.T) {
	log := &fakeLog{}
	cfg := testSessionConfig() // Batch.Size = 3
	s := startTestSession(t, cfg, Deps{Outbox: log}, testItems("item", 10, models.TierGeneric))

	for i := 0; i < 3; i++ {
		drag(t, s, 200)
	}

	sealed := log.sealedBatches()
	if len(sealed) != 1 {
		t.Fatalf("sealed batches = %d, want 1 after size trigger", len(sealed))
	}
	b := sealed[0]
	if b.Batch.Trigger != models.TriggerSize {
		t.Errorf("Trigger = %q, want size", b.Batch.Trigger)
	}
	if len(b.Batch.Decisions) != 3 || len(b.Seqs) != 3 {
		t.Fatalf("batch size = %d decisions / %d seqs, want 3/3", len(b.Batch.Decisions), len(b.Seqs))
	}
	for i, d := range b.Batch.Decisions {
		want := fmt.Sprintf("item-%d", i)
		if d.ItemID != want {
			t.Errorf("Decisions[%d] = %q, want %q (commit order)", i, d.ItemID, want)
		}
	}
	for i := 1; i < len(b.Seqs); i++ {
		if b.Seqs[i] <= b.Seqs[i-1] {
			t.Errorf("Seqs not increasing: %v", b.Seqs)
		}
	}
}

func TestCloseFlushesShutdownBatch(t *testing.T) {
	log := &fakeLog{}
	prefetch := &fakePrefetch{}
	sink := &fakeSink{}
	s := startTestSession(t, testSessionConfig(), Deps{Outbox: log, Prefetch: prefetch, Events: sink},
		testItems("item", 10, models.TierGeneric))

	drag(t, s, 200)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	sealed := log.sealedBatches()
	if len(sealed) != 1 {
		t.Fatalf("sealed batches = %d, want 1 on close", len(sealed))
	}
	if sealed[0].Batch.Trigger != models.TriggerShutdown {
		t.Errorf("Trigger = %q, want shutdown", sealed[0].Batch.Trigger)
	}

	prefetch.mu.Lock()
	ended := append([]string(nil), prefetch.ended...)
	prefetch.mu.Unlock()
	if len(ended) != 1 || ended[0] != "sess-1" {
		t.Errorf("prefetch ended = %v, want [sess-1]", ended)
	}

	// Close is idempotent and later operations report closure.
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Begin(context.Background(), models.GestureStart{At: time.Now()}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Begin() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestIntervalFlushSealsPartialBatch(t *testing.T) {
	log := &fakeLog{}
	cfg := testSessionConfig()
	cfg.Batch = batcher.Config{Size: 100, FlushInterval: 30 * time.Millisecond}
	s := startTestSession(t, cfg, Deps{Outbox: log}, testItems("item", 10, models.TierGeneric))

	drag(t, s, 200)

	deadline := time.After(2 * time.Second)
	for len(log.sealedBatches()) == 0 {
		select {
		case <-deadline:
			t.Fatal("interval flush never sealed the partial batch")
		case <-time.After(5 * time.Millisecond):
		}
	}
	sealed := log.sealedBatches()
	if sealed[0].Batch.Trigger != models.TriggerInterval {
		t.Errorf("Trigger = %q, want interval", sealed[0].Batch.Trigger)
	}
	if len(sealed[0].Batch.Decisions) != 1 {
		t.Errorf("batch decisions = %d, want 1", len(sealed[0].Batch.Decisions))
	}
}

func TestBeginOnExhaustedDeck(t *testing.T) {
	log := &fakeLog{}
	s := startTestSession(t, testSessionConfig(), Deps{Outbox: log}, nil)

	err := s.Begin(context.Background(), models.GestureStart{At: time.Now()})
	if !errors.Is(err, ErrDeckExhausted) {
		t.Errorf("Begin() error = %v, want ErrDeckExhausted", err)
	}
}

func TestOutboxFailureKeepsCardInPlace(t *testing.T) {
	log := &fakeLog{failNext: true}
	s := startTestSession(t, testSessionConfig(), Deps{Outbox: log}, testItems("item", 5, models.TierGeneric))

	ctx := context.Background()
	now := time.Now()
	if err := s.Begin(ctx, models.GestureStart{At: now}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := s.Release(ctx, models.GestureRelease{DX: 200, VX: 800, At: now}); err == nil {
		t.Fatal("Release() error = nil, want outbox failure")
	}

	// The card was not consumed; the next commit lands on it.
	rr := drag(t, s, 200)
	if rr.Decision == nil || rr.Decision.ItemID != "item-0" {
		t.Fatalf("decision after failure = %+v, want item-0", rr.Decision)
	}
}

func TestLowWaterRefillSignal(t *testing.T) {
	log := &fakeLog{}
	refiller := &fakeRefiller{}
	cfg := testSessionConfig() // LowWaterMark = 2
	s := startTestSession(t, cfg, Deps{Outbox: log, Refill: refiller}, testItems("item", 3, models.TierGeneric))

	drag(t, s, 200) // remaining 2
	if refiller.count() != 0 {
		t.Fatalf("refill calls = %d before crossing, want 0", refiller.count())
	}
	drag(t, s, 200) // remaining 1, below mark
	if refiller.count() != 1 {
		t.Fatalf("refill calls = %d after crossing, want 1", refiller.count())
	}
	// The latch fires once per crossing, not per swipe below the mark.
	drag(t, s, 200)
	if refiller.count() != 1 {
		t.Errorf("refill calls = %d, want still 1", refiller.count())
	}
}

func TestWindowNotificationsTrackIndex(t *testing.T) {
	log := &fakeLog{}
	prefetch := &fakePrefetch{}
	cfg := testSessionConfig()
	s := startTestSession(t, cfg, Deps{Outbox: log, Prefetch: prefetch}, testItems("item", 10, models.TierGeneric))

	call, ok := prefetch.lastWindow()
	if !ok {
		t.Fatal("no window notification after append")
	}
	if call.index != 0 || len(call.window) != cfg.Lookahead {
		t.Errorf("append window = index %d len %d, want 0 and %d", call.index, len(call.window), cfg.Lookahead)
	}

	drag(t, s, 200)
	call, _ = prefetch.lastWindow()
	if call.index != 1 {
		t.Errorf("post-advance window index = %d, want 1", call.index)
	}
	if call.window[0].ID != "item-1" {
		t.Errorf("window head = %q, want item-1", call.window[0].ID)
	}
}

func TestAppendDropsSeenItems(t *testing.T) {
	log := &fakeLog{}
	s := startTestSession(t, testSessionConfig(), Deps{Outbox: log}, testItems("item", 5, models.TierGeneric))

	res, err := s.AppendItems(context.Background(), testItems("item", 5, models.TierGeneric))
	if err != nil {
		t.Fatalf("AppendItems() error = %v", err)
	}
	if res.Added != 0 || res.Duplicates != 5 {
		t.Errorf("re-append = %+v, want 0 added, 5 duplicates", res)
	}

	res, err = s.AppendItems(context.Background(), testItems("fresh", 3, models.TierBrand))
	if err != nil {
		t.Fatalf("AppendItems() error = %v", err)
	}
	if res.Added != 3 {
		t.Errorf("fresh append added = %d, want 3", res.Added)
	}
}

func TestHapticPulseSequence(t *testing.T) {
	log := &fakeLog{}
	haptics := &fakeHaptics{}
	cfg := testSessionConfig()
	cfg.HapticsEnabled = true
	s := startTestSession(t, cfg, Deps{Outbox: log, Haptics: haptics}, testItems("item", 5, models.TierGeneric))

	ctx := context.Background()
	now := time.Now()
	if err := s.Begin(ctx, models.GestureStart{At: now}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := s.Move(ctx, models.GestureMove{DX: 200, At: now}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, err := s.Release(ctx, models.GestureRelease{DX: 200, VX: 800, At: now}); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	want := []string{gesture.PulseStart, gesture.PulseThreshold, gesture.PulseCommit}
	got := haptics.kinds()
	if len(got) != len(want) {
		t.Fatalf("pulses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pulse[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
