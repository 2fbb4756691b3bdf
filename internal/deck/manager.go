// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package deck

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ContentSource supplies deck items. The supplier client implements it.
type ContentSource interface {
	FetchBatch(ctx context.Context, userID string, count int) ([]models.ContentItem, error)
	RequestGeneration(ctx context.Context, req models.GenerationRequest) (string, error)
}

// Notices forwards user-visible supply problems toward the session's
// client. Optional.
type Notices interface {
	SupplierNotice(sessionID, msg string)
}

const (
	// seenCapacity bounds the per-user seen filter.
	seenCapacity = 100_000
	seenTTL      = 7 * 24 * time.Hour
	seenFPRate   = 0.01

	refillQueueDepth = 256
	refillTimeout    = 20 * time.Second

	// itemIndexCapacity bounds the itemID lookup used by the media
	// endpoint. Items fall out after a day; the media cache holds the
	// bytes, this only resolves IDs to URLs.
	itemIndexCapacity = 10_000
	itemIndexTTL      = 24 * time.Hour
)

type refillRequest struct {
	sessionID string
	userID    string
	count     int
}

// Manager owns the session registry: it creates sessions, routes refill
// signals to the supplier, and reaps idle sessions. Runs as a
// supervised service.
type Manager struct {
	cfg      Config
	deps     Deps
	supplier ContentSource
	notices  Notices

	mu       sync.RWMutex
	sessions map[string]*Session

	// seen filters are per user and outlive sessions, so an image
	// swiped yesterday is not dealt again today.
	seenMu sync.Mutex
	seen   map[string]cache.SeenFilter

	// items resolves dealt item IDs back to their metadata for the
	// media endpoint.
	items *cache.LRUCache[models.ContentItem]

	refills chan refillRequest
}

// NewManager builds the registry. supplier and notices may be nil; the
// manager then satisfies refill signals with nothing, which only makes
// sense in tests.
func NewManager(cfg Config, deps Deps, supplier ContentSource, notices Notices) *Manager {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		supplier: supplier,
		notices:  notices,
		sessions: make(map[string]*Session),
		seen:     make(map[string]cache.SeenFilter),
		items:    cache.NewLRUCache[models.ContentItem](itemIndexCapacity, itemIndexTTL),
		refills:  make(chan refillRequest, refillQueueDepth),
	}
	// Refill signals from engines land on the manager's queue.
	m.deps.Refill = m
	return m
}

// Create starts a session for userID, seeds its deck from the supplier,
// and returns it with the first snapshot.
func (m *Manager) Create(ctx context.Context, userID string, viewport float64) (*Session, models.DeckSnapshot, error) {
	id := uuid.NewString()
	s := newSession(id, userID, viewport, m.cfg, m.deps, m.seenFilter(userID))

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	s.start()

	if m.supplier != nil {
		items, err := m.supplier.FetchBatch(ctx, userID, m.cfg.Lookahead)
		if err != nil {
			logging.Warn().Err(err).
				Str("session_id", id).
				Str("user_id", userID).
				Msg("MANAGER: Initial deck fetch failed")
			m.notify(id, "content supply is delayed, the deck will fill shortly")
			m.RequestRefill(id, userID, m.cfg.RefillBatchSize)
		} else {
			m.indexItems(items)
			if _, err := s.AppendItems(ctx, items); err != nil {
				m.remove(id)
				return nil, models.DeckSnapshot{}, err
			}
		}
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		m.remove(id)
		return nil, models.DeckSnapshot{}, err
	}

	logging.Info().
		Str("session_id", id).
		Str("user_id", userID).
		Int("deck", snap.Remaining).
		Msg("MANAGER: Session created")
	return s, snap, nil
}

// Get returns the live session or ErrSessionNotFound.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends one session, flushing its batch buffer.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	m.remove(sessionID)
	return s.Close(ctx)
}

// Sessions snapshots the live session list.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// RequestRefill queues a supplier fetch for the session. Never blocks;
// a full queue drops the signal and the next low-water crossing retries.
func (m *Manager) RequestRefill(sessionID, userID string, count int) {
	select {
	case m.refills <- refillRequest{sessionID: sessionID, userID: userID, count: count}:
	default:
		metrics.RefillSignalsTotal.WithLabelValues("failed").Inc()
		logging.Warn().Str("session_id", sessionID).Msg("MANAGER: Refill queue full, signal dropped")
	}
}

// Serve drains the refill queue and reaps idle sessions until ctx is
// canceled, then closes every remaining session so their buffers flush.
func (m *Manager) Serve(ctx context.Context) error {
	reap := time.NewTicker(m.cfg.SessionIdleTTL / 4)
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return ctx.Err()
		case req := <-m.refills:
			m.refill(ctx, req)
		case <-reap.C:
			m.reapIdle(ctx)
		}
	}
}

func (m *Manager) String() string { return "deck-manager" }

func (m *Manager) refill(ctx context.Context, req refillRequest) {
	s, err := m.Get(req.sessionID)
	if err != nil {
		return // session ended while queued
	}
	if m.supplier == nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, refillTimeout)
	defer cancel()

	items, err := m.supplier.FetchBatch(fctx, req.userID, req.count)
	if err != nil {
		metrics.RefillSignalsTotal.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).
			Str("session_id", req.sessionID).
			Msg("MANAGER: Refill fetch failed")
		m.notify(req.sessionID, "content supply is delayed, the deck will fill shortly")
		return
	}

	m.indexItems(items)
	if _, err := s.AppendItems(fctx, items); err != nil && !errors.Is(err, ErrSessionClosed) {
		logging.Warn().Err(err).Str("session_id", req.sessionID).Msg("MANAGER: Refill append failed")
		return
	}
	metrics.RefillSignalsTotal.WithLabelValues("satisfied").Inc()

	// A short page means the supplier's pool for this user is running
	// dry; ask the generation pipeline for fresh content.
	if len(items) < req.count/2 {
		jobID, err := m.supplier.RequestGeneration(fctx, models.GenerationRequest{
			UserID:    req.userID,
			NumImages: req.count,
		})
		if err != nil {
			logging.Warn().Err(err).Str("user_id", req.userID).Msg("MANAGER: Generation request failed")
			m.notify(req.sessionID, "fresh content is being generated, expect fewer cards for a moment")
			return
		}
		logging.Debug().
			Str("user_id", req.userID).
			Str("job_id", jobID).
			Msg("MANAGER: Generation requested")
	}
}

func (m *Manager) reapIdle(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.SessionIdleTTL)
	for _, s := range m.Sessions() {
		info, err := s.Info(ctx)
		if err != nil {
			m.remove(s.ID())
			continue
		}
		if info.LastActivity.Before(cutoff) {
			m.remove(s.ID())
			if err := s.Close(ctx); err != nil {
				logging.Warn().Err(err).Str("session_id", s.ID()).Msg("MANAGER: Reap close failed")
			}
			logging.Info().
				Str("session_id", s.ID()).
				Time("last_activity", info.LastActivity).
				Msg("MANAGER: Idle session reaped")
		}
	}
}

func (m *Manager) closeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range m.Sessions() {
		m.remove(s.ID())
		if err := s.Close(ctx); err != nil {
			logging.Warn().Err(err).Str("session_id", s.ID()).Msg("MANAGER: Shutdown close failed")
		}
	}
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

func (m *Manager) notify(sessionID, msg string) {
	if m.notices == nil {
		return
	}
	m.notices.SupplierNotice(sessionID, msg)
}

// FindItem resolves a dealt item ID to its metadata. Returns false for
// IDs that were never dealt or have aged out of the index.
func (m *Manager) FindItem(itemID string) (models.ContentItem, bool) {
	return m.items.Get(itemID)
}

func (m *Manager) indexItems(items []models.ContentItem) {
	for _, item := range items {
		m.items.Add(item.ID, item)
	}
}

func (m *Manager) seenFilter(userID string) cache.SeenFilter {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	f, ok := m.seen[userID]
	if !ok {
		f = cache.NewBloomLRU(seenCapacity, seenTTL, seenFPRate)
		m.seen[userID] = f
	}
	return f
}
