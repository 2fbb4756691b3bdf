// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/batcher"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/gesture"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

var (
	// ErrSessionClosed is returned by session operations after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrDeckExhausted is returned by Begin when no card is left to drag.
	ErrDeckExhausted = errors.New("deck exhausted")
)

// DecisionLog is the durable record the engine writes through: every
// decision before it enters the batch buffer, every sealed batch after.
type DecisionLog interface {
	AppendDecision(ctx context.Context, d models.Decision) (uint64, error)
	SealBatch(ctx context.Context, sb batcher.SealedBatch) error
}

// Prefetcher reacts to deck window movement. Calls must not block; the
// engine invokes them inline.
type Prefetcher interface {
	WindowChanged(sessionID string, currentIndex int, window []models.ContentItem)
	SessionEnded(sessionID string)
}

// Refiller asks the supplier pipeline for more content. Requests are
// fire-and-forget; fetched items come back through Session.AppendItems.
type Refiller interface {
	RequestRefill(sessionID, userID string, count int)
}

// MediaIndex answers whether an item's media is already cached, for the
// cached flags in deck snapshots.
type MediaIndex interface {
	Cached(itemID string) bool
}

// Haptics forwards gesture pulses to the session's client. Must not block.
type Haptics interface {
	Pulse(sessionID, kind string, intensity float64)
}

// EventSink receives engine lifecycle events for fan-out. Must not block.
type EventSink interface {
	DecisionCommitted(d models.Decision)
	BatchSealed(b models.DecisionBatch)
	SessionStarted(info models.SessionInfo)
	SessionEnded(info models.SessionInfo)
	DeckRefilled(sessionID string, added, remaining int)
}

// Deps wires a session engine to the rest of the system. Outbox is
// required; every other collaborator may be nil and is skipped.
type Deps struct {
	Outbox   DecisionLog
	Prefetch Prefetcher
	Refill   Refiller
	Media    MediaIndex
	Haptics  Haptics
	Events   EventSink
}

// Config tunes deck and session behavior.
type Config struct {
	Lookahead       int           // prefetch and snapshot window size
	LowWaterMark    int           // refill signal threshold
	RefillBatchSize int           // items requested per refill signal
	SessionIdleTTL  time.Duration // reap sessions idle this long
	HapticsEnabled  bool
	FlushTick       time.Duration // engine tick driving interval flushes

	Gesture gesture.Config
	Batch   batcher.Config
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Lookahead:       50,
		LowWaterMark:    10,
		RefillBatchSize: 25,
		SessionIdleTTL:  30 * time.Minute,
		HapticsEnabled:  true,
		FlushTick:       time.Second,
		Gesture:         gesture.DefaultConfig(),
		Batch:           batcher.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Lookahead <= 0 {
		c.Lookahead = d.Lookahead
	}
	if c.LowWaterMark <= 0 {
		c.LowWaterMark = d.LowWaterMark
	}
	if c.RefillBatchSize <= 0 {
		c.RefillBatchSize = d.RefillBatchSize
	}
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = d.SessionIdleTTL
	}
	if c.FlushTick <= 0 {
		c.FlushTick = d.FlushTick
	}
	return c
}

// ReleaseResult is everything a transport needs to answer a release:
// the gesture verdict, the decision if one was committed, and a fresh
// snapshot reflecting any advance.
type ReleaseResult struct {
	Outcome  gesture.Outcome
	Decision *models.Decision
	Snapshot models.DeckSnapshot
}

type reqKind int

const (
	reqBegin reqKind = iota
	reqMove
	reqRelease
	reqAppend
	reqSnapshot
	reqInfo
	reqClose
)

type request struct {
	kind    reqKind
	start   models.GestureStart
	move    models.GestureMove
	release models.GestureRelease
	items   []models.ContentItem
	reply   chan response
}

type response struct {
	err       error
	transform models.Transform
	release   ReleaseResult
	snapshot  models.DeckSnapshot
	info      models.SessionInfo
	appended  AppendResult
}

// Session is one user's live swipe session. All exported methods funnel
// through the inbox channel into the engine goroutine; they are safe to
// call from any goroutine.
type Session struct {
	id        string
	userID    string
	viewport  float64
	startedAt time.Time

	cfg  Config
	deps Deps

	inbox chan request
	done  chan struct{}

	// Engine-owned state. Only run() and the functions it calls touch
	// these after start().
	deck         *Deck
	mapper       *gesture.Mapper
	buffer       *batcher.Buffer
	lastActivity time.Time
	decisions    int
	accepts      int
	now          func() time.Time
}

func newSession(id, userID string, viewport float64, cfg Config, deps Deps, seen cache.SeenFilter) *Session {
	gcfg := cfg.Gesture
	if viewport > 0 {
		gcfg.ViewportWidth = viewport
	}

	s := &Session{
		id:       id,
		userID:   userID,
		viewport: gcfg.ViewportWidth,
		cfg:      cfg,
		deps:     deps,
		inbox:    make(chan request),
		done:     make(chan struct{}),
		deck:     NewDeck(cfg.LowWaterMark, seen),
		buffer:   batcher.NewBuffer(id, userID, cfg.Batch),
		now:      time.Now,
	}
	s.mapper = gesture.NewMapper(gcfg, sessionHaptics{s})
	s.startedAt = s.now()
	s.lastActivity = s.startedAt
	return s
}

// start launches the engine goroutine. Called once by the manager.
func (s *Session) start() {
	metrics.ActiveSessions.Inc()
	if s.deps.Events != nil {
		s.deps.Events.SessionStarted(s.buildInfo())
	}
	go s.run()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the owning user.
func (s *Session) UserID() string {
	return s.userID
}

// Begin starts a drag on the current card.
func (s *Session) Begin(ctx context.Context, f models.GestureStart) error {
	_, err := s.send(ctx, request{kind: reqBegin, start: f})
	return err
}

// Move feeds a displacement sample and returns the card transform.
func (s *Session) Move(ctx context.Context, f models.GestureMove) (models.Transform, error) {
	resp, err := s.send(ctx, request{kind: reqMove, move: f})
	return resp.transform, err
}

// Release ends the drag and, past the threshold, commits a decision.
func (s *Session) Release(ctx context.Context, f models.GestureRelease) (ReleaseResult, error) {
	resp, err := s.send(ctx, request{kind: reqRelease, release: f})
	return resp.release, err
}

// AppendItems merges a refill page into the deck and returns the per-item
// outcome.
func (s *Session) AppendItems(ctx context.Context, items []models.ContentItem) (AppendResult, error) {
	resp, err := s.send(ctx, request{kind: reqAppend, items: items})
	return resp.appended, err
}

// Snapshot returns a read-only view of the deck.
func (s *Session) Snapshot(ctx context.Context) (models.DeckSnapshot, error) {
	resp, err := s.send(ctx, request{kind: reqSnapshot})
	return resp.snapshot, err
}

// Info returns the session summary.
func (s *Session) Info(ctx context.Context) (models.SessionInfo, error) {
	resp, err := s.send(ctx, request{kind: reqInfo})
	return resp.info, err
}

// Close flushes the batch buffer through the shutdown path and stops the
// engine. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.send(ctx, request{kind: reqClose})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// send hands a request to the engine and waits for its reply. The done
// channel breaks both waits when the engine has stopped.
func (s *Session) send(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)

	select {
	case s.inbox <- req:
	case <-s.done:
		return response{}, ErrSessionClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-s.done:
		return response{}, ErrSessionClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// run is the engine loop. It owns all mutable session state; requests are
// applied strictly in arrival order.
func (s *Session) run() {
	ticker := time.NewTicker(s.cfg.FlushTick)
	defer ticker.Stop()

	for {
		select {
		case req := <-s.inbox:
			if req.kind == reqClose {
				s.shutdown()
				req.reply <- response{}
				return
			}
			req.reply <- s.handle(req)
		case <-ticker.C:
			if sealed := s.buffer.FlushIfExpired(); sealed != nil {
				s.dispatchSealed(sealed)
			}
		}
	}
}

func (s *Session) handle(req request) response {
	switch req.kind {
	case reqBegin:
		s.lastActivity = s.now()
		return response{err: s.handleBegin(req.start)}
	case reqMove:
		s.lastActivity = s.now()
		tr, err := s.mapper.Move(req.move)
		return response{transform: tr, err: err}
	case reqRelease:
		s.lastActivity = s.now()
		rr, err := s.handleRelease(req.release)
		return response{release: rr, err: err}
	case reqAppend:
		return response{appended: s.handleAppend(req.items)}
	case reqSnapshot:
		return response{snapshot: s.buildSnapshot()}
	case reqInfo:
		return response{info: s.buildInfo()}
	}
	return response{err: fmt.Errorf("unknown request kind %d", req.kind)}
}

func (s *Session) handleBegin(f models.GestureStart) error {
	if _, ok := s.deck.Current(); !ok {
		return ErrDeckExhausted
	}
	return s.mapper.Begin(f)
}

func (s *Session) handleRelease(f models.GestureRelease) (ReleaseResult, error) {
	out, err := s.mapper.Release(f)
	if err != nil {
		return ReleaseResult{}, err
	}

	if !out.Committed {
		s.mapper.SnapComplete()
		return ReleaseResult{Outcome: out, Snapshot: s.buildSnapshot()}, nil
	}

	item, ok := s.deck.Current()
	if !ok {
		// Begin refuses an exhausted deck, so a commit without a card
		// means the caller raced Close or skipped Begin entirely.
		s.mapper.Cancel()
		return ReleaseResult{}, ErrDeckExhausted
	}

	dec := models.Decision{
		ItemID:        item.ID,
		SessionID:     s.id,
		UserID:        s.userID,
		Direction:     out.Direction,
		Tier:          item.Tier,
		SwipeVelocity: out.Velocity,
		Confidence:    out.Confidence,
		Hesitation:    out.Hesitation,
		DecidedAt:     s.now(),
	}

	// Durable first: the decision must survive a crash before the deck
	// advances past the card.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	seq, err := s.deps.Outbox.AppendDecision(ctx, dec)
	cancel()
	if err != nil {
		s.mapper.Cancel()
		return ReleaseResult{}, fmt.Errorf("record decision: %w", err)
	}

	sealed, err := s.buffer.Append(batcher.PendingDecision{Seq: seq, Decision: dec})
	if err != nil {
		// The durable copy exists; recovery will fold it into a batch.
		logging.Error().Err(err).
			Str("session_id", s.id).
			Str("item_id", dec.ItemID).
			Msg("ENGINE: Buffer rejected recorded decision")
	}

	s.decisions++
	if out.Direction == models.DirectionAccept {
		s.accepts++
	}
	metrics.RecordDecision(string(out.Direction), string(item.Tier), out.Confidence, out.Hesitation)
	if s.deps.Events != nil {
		s.deps.Events.DecisionCommitted(dec)
	}

	if sealed != nil {
		s.dispatchSealed(sealed)
	}

	refill := s.deck.Advance()
	s.mapper.CommitComplete()
	metrics.DeckRemaining.Observe(float64(s.deck.Remaining()))

	logging.Debug().
		Str("session_id", s.id).
		Str("item_id", dec.ItemID).
		Str("direction", string(dec.Direction)).
		Float64("confidence", dec.Confidence).
		Dur("hesitation", dec.Hesitation).
		Int("remaining", s.deck.Remaining()).
		Msg("ENGINE: Decision committed")

	s.notifyWindow()
	if refill {
		s.requestRefill()
	}

	return ReleaseResult{Outcome: out, Decision: &dec, Snapshot: s.buildSnapshot()}, nil
}

func (s *Session) handleAppend(items []models.ContentItem) AppendResult {
	res, refill := s.deck.Append(items)

	if res.Added > 0 {
		metrics.DeckAppendsTotal.Add(float64(res.Added))
		if s.deps.Events != nil {
			s.deps.Events.DeckRefilled(s.id, res.Added, s.deck.Remaining())
		}
	}
	if res.Duplicates > 0 {
		metrics.DeckDuplicatesDroppedTotal.Add(float64(res.Duplicates))
	}
	metrics.DeckRemaining.Observe(float64(s.deck.Remaining()))

	logging.Debug().
		Str("session_id", s.id).
		Int("added", res.Added).
		Int("duplicates", res.Duplicates).
		Int("invalid", res.Invalid).
		Int("remaining", s.deck.Remaining()).
		Msg("ENGINE: Deck append")

	s.notifyWindow()
	if refill {
		s.requestRefill()
	}
	return res
}

func (s *Session) dispatchSealed(sb *batcher.SealedBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.deps.Outbox.SealBatch(ctx, *sb); err != nil {
		// Decisions stay as unsealed outbox records; startup recovery
		// re-forms them into a batch.
		logging.Error().Err(err).
			Str("session_id", s.id).
			Str("batch_id", sb.Batch.BatchID.String()).
			Int("decisions", len(sb.Batch.Decisions)).
			Msg("ENGINE: Seal batch failed")
		return
	}

	metrics.RecordBatchFlush(string(sb.Batch.Trigger), len(sb.Batch.Decisions))
	if s.deps.Events != nil {
		s.deps.Events.BatchSealed(sb.Batch)
	}

	logging.Debug().
		Str("session_id", s.id).
		Str("batch_id", sb.Batch.BatchID.String()).
		Str("trigger", string(sb.Batch.Trigger)).
		Int("decisions", len(sb.Batch.Decisions)).
		Msg("ENGINE: Batch sealed")
}

func (s *Session) notifyWindow() {
	if s.deps.Prefetch == nil {
		return
	}
	s.deps.Prefetch.WindowChanged(s.id, s.deck.CurrentIndex(), s.deck.Window(s.cfg.Lookahead))
}

func (s *Session) requestRefill() {
	metrics.RefillSignalsTotal.WithLabelValues("requested").Inc()
	logging.Debug().
		Str("session_id", s.id).
		Int("remaining", s.deck.Remaining()).
		Int("count", s.cfg.RefillBatchSize).
		Msg("ENGINE: Low-water refill signal")
	if s.deps.Refill == nil {
		return
	}
	s.deps.Refill.RequestRefill(s.id, s.userID, s.cfg.RefillBatchSize)
}

func (s *Session) buildSnapshot() models.DeckSnapshot {
	window := s.deck.Window(s.cfg.Lookahead)
	upcoming := make([]models.UpcomingItem, len(window))
	for i, item := range window {
		cached := false
		if s.deps.Media != nil {
			cached = s.deps.Media.Cached(item.ID)
		}
		upcoming[i] = models.UpcomingItem{
			Item:     item,
			Position: s.deck.CurrentIndex() + i,
			Cached:   cached,
		}
	}
	return models.DeckSnapshot{
		SessionID:    s.id,
		UserID:       s.userID,
		CurrentIndex: s.deck.CurrentIndex(),
		Remaining:    s.deck.Remaining(),
		Upcoming:     upcoming,
		UpdatedAt:    s.now(),
	}
}

func (s *Session) buildInfo() models.SessionInfo {
	return models.SessionInfo{
		ID:            s.id,
		UserID:        s.userID,
		ViewportWidth: s.viewport,
		StartedAt:     s.startedAt,
		LastActivity:  s.lastActivity,
		Decisions:     s.decisions,
		Accepts:       s.accepts,
	}
}

func (s *Session) shutdown() {
	s.mapper.Cancel()
	if sealed := s.buffer.FlushShutdown(); sealed != nil {
		s.dispatchSealed(sealed)
	}
	if s.deps.Prefetch != nil {
		s.deps.Prefetch.SessionEnded(s.id)
	}
	if s.deps.Events != nil {
		s.deps.Events.SessionEnded(s.buildInfo())
	}
	metrics.ActiveSessions.Dec()
	close(s.done)

	logging.Info().
		Str("session_id", s.id).
		Str("user_id", s.userID).
		Int("decisions", s.decisions).
		Msg("ENGINE: Session closed")
}

// sessionHaptics adapts the engine to the mapper's pulse hook, scaling
// intensity by the current card's tier.
type sessionHaptics struct {
	s *Session
}

func (h sessionHaptics) Pulse(kind string) {
	s := h.s
	if s.deps.Haptics == nil || !s.cfg.HapticsEnabled {
		return
	}
	intensity := 0.5
	if cur, ok := s.deck.Current(); ok {
		intensity = hapticIntensity(cur.Tier)
	}
	s.deps.Haptics.Pulse(s.id, kind, intensity)
}

// hapticIntensity maps content tiers to pulse strength. Personalized
// content gets the strongest cue.
func hapticIntensity(t models.Tier) float64 {
	switch t {
	case models.TierPersonal:
		return 1.0
	case models.TierBrand:
		return 0.75
	default:
		return 0.5
	}
}
