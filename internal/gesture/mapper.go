// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package gesture

import (
	"errors"
	"math"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// State is the phase of the active card's gesture lifecycle.
type State string

const (
	// StateIdle means no drag is in progress; the card is at rest.
	StateIdle State = "idle"
	// StateDragging means a drag is active and moves produce transforms.
	StateDragging State = "dragging"
	// StateCommitting means a release crossed the threshold; the card is
	// animating off-screen while the decision is recorded.
	StateCommitting State = "committing"
	// StateSnappingBack means a release fell short; the card is animating
	// back to rest.
	StateSnappingBack State = "snapping_back"
)

var (
	// ErrNoDrag is returned by Move and Release when no drag is in
	// progress.
	ErrNoDrag = errors.New("no drag in progress")

	// ErrDragActive is returned by Begin when a drag is already active.
	// Usually means the client lost a release event; callers recover with
	// Cancel followed by a fresh Begin.
	ErrDragActive = errors.New("drag already in progress")

	// ErrCardBusy is returned by Begin while the previous release is
	// still resolving (committing or snapping back).
	ErrCardBusy = errors.New("card still resolving previous release")
)

// Haptic pulse kinds sent to the client.
const (
	// PulseStart fires when a drag begins.
	PulseStart = "start"
	// PulseThreshold fires once when a drag first crosses the commit
	// threshold, and re-arms if the drag retreats below it.
	PulseThreshold = "threshold"
	// PulseCommit fires when a release commits a decision.
	PulseCommit = "commit"
)

// HapticSink receives pulse requests as the gesture crosses tactile
// boundaries. The sink decides intensity (the engine scales it by the
// current card's tier) and forwards over the session's websocket. A nil
// sink disables haptics.
type HapticSink interface {
	Pulse(kind string)
}

// Outcome is the verdict of a release.
//
// When Committed is true, Direction, Velocity, Confidence, and Hesitation
// describe the decision and Transform is the card state at the release
// point. When false, the drag fell short of the threshold and Transform is
// the identity the card snaps back to.
type Outcome struct {
	Committed  bool
	Direction  models.Direction
	Velocity   float64 // signed horizontal release velocity, px/s
	Confidence float64
	Hesitation time.Duration
	Transform  models.Transform
}

// Mapper interprets one session's gesture stream against the current card.
//
// Mapper is not safe for concurrent use. Each session's engine goroutine
// owns one Mapper and serializes calls through its inbox channel; adding a
// lock here would only hide misuse.
type Mapper struct {
	cfg     Config
	haptics HapticSink
	now     func() time.Time

	state         State
	dragStartedAt time.Time
	overThreshold bool
}

// NewMapper creates a mapper with the given tuning. Zero or negative
// config fields fall back to production defaults. haptics may be nil.
func NewMapper(cfg Config, haptics HapticSink) *Mapper {
	return &Mapper{
		cfg:     cfg.withDefaults(),
		haptics: haptics,
		now:     time.Now,
		state:   StateIdle,
	}
}

// State returns the current lifecycle phase.
func (m *Mapper) State() State {
	return m.state
}

// Config returns the tuning in effect after defaulting.
func (m *Mapper) Config() Config {
	return m.cfg
}

// Begin starts a drag on the current card. Hesitation for a decision is
// measured from this instant on the server clock; the client timestamp in
// start is not trusted for timing.
func (m *Mapper) Begin(start models.GestureStart) error {
	switch m.state {
	case StateDragging:
		return ErrDragActive
	case StateCommitting, StateSnappingBack:
		return ErrCardBusy
	}
	m.state = StateDragging
	m.dragStartedAt = m.now()
	m.overThreshold = false
	m.pulse(PulseStart)
	return nil
}

// Move consumes a displacement sample and returns the transform the card
// should render. Crossing the commit threshold fires a haptic pulse on the
// rising edge only; retreating below the threshold re-arms it.
func (m *Mapper) Move(move models.GestureMove) (models.Transform, error) {
	if m.state != StateDragging {
		return models.Transform{}, ErrNoDrag
	}

	over := math.Abs(move.DX) >= m.cfg.ThresholdPx()
	if over && !m.overThreshold {
		m.overThreshold = true
		m.pulse(PulseThreshold)
	} else if !over {
		m.overThreshold = false
	}

	return ComputeTransform(m.cfg, move.DX, move.DY), nil
}

// Release ends the drag and decides the card.
//
// A release at or beyond the threshold commits: positive displacement
// accepts, negative rejects, and the mapper enters Committing until
// CommitComplete. A release short of the threshold enters SnappingBack
// until SnapComplete, and no decision is recorded.
func (m *Mapper) Release(rel models.GestureRelease) (Outcome, error) {
	if m.state != StateDragging {
		return Outcome{}, ErrNoDrag
	}

	if math.Abs(rel.DX) < m.cfg.ThresholdPx() {
		m.state = StateSnappingBack
		m.overThreshold = false
		return Outcome{Transform: models.IdentityTransform()}, nil
	}

	direction := models.DirectionReject
	if rel.DX > 0 {
		direction = models.DirectionAccept
	}

	m.state = StateCommitting
	m.overThreshold = false
	m.pulse(PulseCommit)

	return Outcome{
		Committed:  true,
		Direction:  direction,
		Velocity:   rel.VX,
		Confidence: Confidence(m.cfg, rel.VX),
		Hesitation: m.hesitation(),
		Transform:  ComputeTransform(m.cfg, rel.DX, rel.DY),
	}, nil
}

// CommitComplete marks the committed card's resolution as finished. The
// engine calls this after recording the decision and advancing the deck.
func (m *Mapper) CommitComplete() {
	if m.state == StateCommitting {
		m.state = StateIdle
	}
}

// SnapComplete marks the snap-back as finished.
func (m *Mapper) SnapComplete() {
	if m.state == StateSnappingBack {
		m.state = StateIdle
	}
}

// Cancel aborts any drag or pending resolution and returns the card to
// rest without a decision. Used when the client disconnects mid-drag or
// the session is torn down.
func (m *Mapper) Cancel() {
	m.state = StateIdle
	m.overThreshold = false
}

// hesitation measures how long the user deliberated, from drag start to
// release on the server clock, clamped at zero.
func (m *Mapper) hesitation() time.Duration {
	h := m.now().Sub(m.dragStartedAt)
	if h < 0 {
		return 0
	}
	return h
}

func (m *Mapper) pulse(kind string) {
	if m.haptics != nil {
		m.haptics.Pulse(kind)
	}
}
