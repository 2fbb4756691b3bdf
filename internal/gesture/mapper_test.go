// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package gesture

import (
	"errors"
	"testing"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// fakeClock lets tests control the mapper's view of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// recordingHaptics captures every pulse for assertion.
type recordingHaptics struct {
	pulses []string
}

func (h *recordingHaptics) Pulse(kind string) {
	h.pulses = append(h.pulses, kind)
}

func (h *recordingHaptics) count(kind string) int {
	n := 0
	for _, p := range h.pulses {
		if p == kind {
			n++
		}
	}
	return n
}

func newTestMapper() (*Mapper, *fakeClock, *recordingHaptics) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	haptics := &recordingHaptics{}
	m := NewMapper(DefaultConfig(), haptics)
	m.now = clock.now
	return m, clock, haptics
}

func TestMapperCommitLifecycle(t *testing.T) {
	m, clock, haptics := newTestMapper()
	th := m.Config().ThresholdPx()

	if m.State() != StateIdle {
		t.Fatalf("state = %v, want %v", m.State(), StateIdle)
	}

	if err := m.Begin(models.GestureStart{At: clock.now()}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if m.State() != StateDragging {
		t.Fatalf("state = %v, want %v", m.State(), StateDragging)
	}
	if haptics.count(PulseStart) != 1 {
		t.Errorf("start pulses = %d, want 1", haptics.count(PulseStart))
	}

	tr, err := m.Move(models.GestureMove{DX: 50, DY: 10})
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if tr.TranslateX != 50 {
		t.Errorf("TranslateX = %v, want 50", tr.TranslateX)
	}
	if haptics.count(PulseThreshold) != 0 {
		t.Errorf("threshold pulse fired below threshold")
	}

	if _, err := m.Move(models.GestureMove{DX: th + 20}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if haptics.count(PulseThreshold) != 1 {
		t.Errorf("threshold pulses = %d, want 1", haptics.count(PulseThreshold))
	}

	clock.advance(1 * time.Second)
	out, err := m.Release(models.GestureRelease{DX: th + 40, DY: 5, VX: 1000})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !out.Committed {
		t.Fatal("release beyond threshold did not commit")
	}
	if out.Direction != models.DirectionAccept {
		t.Errorf("Direction = %v, want %v", out.Direction, models.DirectionAccept)
	}
	if out.Velocity != 1000 {
		t.Errorf("Velocity = %v, want 1000", out.Velocity)
	}
	if !approxEqual(out.Confidence, 0.5) {
		t.Errorf("Confidence = %v, want 0.5", out.Confidence)
	}
	if out.Hesitation != time.Second {
		t.Errorf("Hesitation = %v, want 1s", out.Hesitation)
	}
	if out.Transform.TranslateX != th+40 {
		t.Errorf("Transform.TranslateX = %v, want %v", out.Transform.TranslateX, th+40)
	}
	if m.State() != StateCommitting {
		t.Fatalf("state = %v, want %v", m.State(), StateCommitting)
	}
	if haptics.count(PulseCommit) != 1 {
		t.Errorf("commit pulses = %d, want 1", haptics.count(PulseCommit))
	}

	m.CommitComplete()
	if m.State() != StateIdle {
		t.Fatalf("state after CommitComplete = %v, want %v", m.State(), StateIdle)
	}
}

func TestMapperSnapBackLifecycle(t *testing.T) {
	m, _, haptics := newTestMapper()

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := m.Move(models.GestureMove{DX: 40}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	out, err := m.Release(models.GestureRelease{DX: 40, VX: 300})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if out.Committed {
		t.Fatal("release below threshold committed")
	}
	if out.Transform != models.IdentityTransform() {
		t.Errorf("Transform = %+v, want identity", out.Transform)
	}
	if m.State() != StateSnappingBack {
		t.Fatalf("state = %v, want %v", m.State(), StateSnappingBack)
	}
	if haptics.count(PulseCommit) != 0 {
		t.Errorf("snap-back fired a commit pulse")
	}

	m.SnapComplete()
	if m.State() != StateIdle {
		t.Fatalf("state after SnapComplete = %v, want %v", m.State(), StateIdle)
	}
}

func TestMapperReleaseDirections(t *testing.T) {
	th := DefaultConfig().ThresholdPx()

	tests := []struct {
		name          string
		dx            float64
		wantCommitted bool
		wantDirection models.Direction
	}{
		{"far right accepts", th + 100, true, models.DirectionAccept},
		{"far left rejects", -(th + 100), true, models.DirectionReject},
		{"exactly at threshold accepts", th, true, models.DirectionAccept},
		{"exactly at negative threshold rejects", -th, true, models.DirectionReject},
		{"just under snaps back", th - 1, false, ""},
		{"zero displacement snaps back", 0, false, ""},
		{"small left snaps back", -30, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestMapper()
			if err := m.Begin(models.GestureStart{}); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}

			out, err := m.Release(models.GestureRelease{DX: tt.dx})
			if err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if out.Committed != tt.wantCommitted {
				t.Errorf("Committed = %v, want %v", out.Committed, tt.wantCommitted)
			}
			if tt.wantCommitted && out.Direction != tt.wantDirection {
				t.Errorf("Direction = %v, want %v", out.Direction, tt.wantDirection)
			}
		})
	}
}

func TestMapperThresholdPulseRearms(t *testing.T) {
	m, _, haptics := newTestMapper()
	th := m.Config().ThresholdPx()

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// Cross, hold, retreat, cross again. Only the two rising edges pulse.
	steps := []float64{th + 10, th + 30, th + 5, th - 20, 50, th + 1, th + 60}
	for _, dx := range steps {
		if _, err := m.Move(models.GestureMove{DX: dx}); err != nil {
			t.Fatalf("Move(%v) error = %v", dx, err)
		}
	}

	if got := haptics.count(PulseThreshold); got != 2 {
		t.Errorf("threshold pulses = %d, want 2", got)
	}
}

func TestMapperThresholdPulseOnLeftwardDrag(t *testing.T) {
	m, _, haptics := newTestMapper()
	th := m.Config().ThresholdPx()

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := m.Move(models.GestureMove{DX: -(th + 15)}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if got := haptics.count(PulseThreshold); got != 1 {
		t.Errorf("threshold pulses = %d, want 1", got)
	}
}

func TestMapperHesitationFromDragStart(t *testing.T) {
	m, clock, _ := newTestMapper()
	th := m.Config().ThresholdPx()

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	clock.advance(1500 * time.Millisecond)

	out, err := m.Release(models.GestureRelease{DX: th + 10})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if out.Hesitation != 1500*time.Millisecond {
		t.Errorf("Hesitation = %v, want 1.5s", out.Hesitation)
	}
}

func TestMapperHesitationIgnoresClientTimestamps(t *testing.T) {
	m, clock, _ := newTestMapper()
	th := m.Config().ThresholdPx()

	// Client clocks drift and lie; only the server clock feeds hesitation.
	skewed := clock.now().Add(-48 * time.Hour)
	if err := m.Begin(models.GestureStart{At: skewed}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	clock.advance(2 * time.Second)

	out, err := m.Release(models.GestureRelease{DX: th + 10, At: skewed.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if out.Hesitation != 2*time.Second {
		t.Errorf("Hesitation = %v, want 2s", out.Hesitation)
	}
}

func TestMapperHesitationNeverNegative(t *testing.T) {
	m, clock, _ := newTestMapper()
	th := m.Config().ThresholdPx()

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	clock.t = clock.t.Add(-1 * time.Minute)

	out, err := m.Release(models.GestureRelease{DX: th + 10})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if out.Hesitation != 0 {
		t.Errorf("Hesitation = %v, want 0", out.Hesitation)
	}
}

func TestMapperWrongStateCalls(t *testing.T) {
	t.Run("move while idle", func(t *testing.T) {
		m, _, _ := newTestMapper()
		if _, err := m.Move(models.GestureMove{DX: 10}); !errors.Is(err, ErrNoDrag) {
			t.Errorf("Move() error = %v, want ErrNoDrag", err)
		}
	})

	t.Run("release while idle", func(t *testing.T) {
		m, _, _ := newTestMapper()
		if _, err := m.Release(models.GestureRelease{DX: 200}); !errors.Is(err, ErrNoDrag) {
			t.Errorf("Release() error = %v, want ErrNoDrag", err)
		}
	})

	t.Run("begin during drag", func(t *testing.T) {
		m, _, _ := newTestMapper()
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := m.Begin(models.GestureStart{}); !errors.Is(err, ErrDragActive) {
			t.Errorf("second Begin() error = %v, want ErrDragActive", err)
		}
	})

	t.Run("begin while committing", func(t *testing.T) {
		m, _, _ := newTestMapper()
		th := m.Config().ThresholdPx()
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if _, err := m.Release(models.GestureRelease{DX: th + 5}); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if err := m.Begin(models.GestureStart{}); !errors.Is(err, ErrCardBusy) {
			t.Errorf("Begin() error = %v, want ErrCardBusy", err)
		}
	})

	t.Run("begin while snapping back", func(t *testing.T) {
		m, _, _ := newTestMapper()
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if _, err := m.Release(models.GestureRelease{DX: 10}); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if err := m.Begin(models.GestureStart{}); !errors.Is(err, ErrCardBusy) {
			t.Errorf("Begin() error = %v, want ErrCardBusy", err)
		}
	})

	t.Run("move while committing", func(t *testing.T) {
		m, _, _ := newTestMapper()
		th := m.Config().ThresholdPx()
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if _, err := m.Release(models.GestureRelease{DX: th + 5}); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if _, err := m.Move(models.GestureMove{DX: 10}); !errors.Is(err, ErrNoDrag) {
			t.Errorf("Move() error = %v, want ErrNoDrag", err)
		}
	})
}

func TestMapperCancel(t *testing.T) {
	t.Run("cancel mid-drag", func(t *testing.T) {
		m, _, _ := newTestMapper()
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		m.Cancel()
		if m.State() != StateIdle {
			t.Fatalf("state = %v, want %v", m.State(), StateIdle)
		}
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Errorf("Begin() after Cancel error = %v", err)
		}
	})

	t.Run("cancel while snapping back", func(t *testing.T) {
		m, _, _ := newTestMapper()
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if _, err := m.Release(models.GestureRelease{DX: 10}); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		m.Cancel()
		if m.State() != StateIdle {
			t.Fatalf("state = %v, want %v", m.State(), StateIdle)
		}
	})
}

func TestMapperCompletionsIgnoredOutOfPhase(t *testing.T) {
	m, _, _ := newTestMapper()

	m.CommitComplete()
	m.SnapComplete()
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want %v", m.State(), StateIdle)
	}

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	m.CommitComplete()
	m.SnapComplete()
	if m.State() != StateDragging {
		t.Fatalf("state = %v, want %v", m.State(), StateDragging)
	}
}

func TestMapperNilHaptics(t *testing.T) {
	m := NewMapper(DefaultConfig(), nil)
	th := m.Config().ThresholdPx()

	if err := m.Begin(models.GestureStart{}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := m.Move(models.GestureMove{DX: th + 50}); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	out, err := m.Release(models.GestureRelease{DX: th + 50, VX: 2500})
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !out.Committed {
		t.Fatal("release beyond threshold did not commit")
	}
}

func TestMapperRepeatedRounds(t *testing.T) {
	m, clock, _ := newTestMapper()
	th := m.Config().ThresholdPx()

	for round := 0; round < 5; round++ {
		if err := m.Begin(models.GestureStart{}); err != nil {
			t.Fatalf("round %d: Begin() error = %v", round, err)
		}
		clock.advance(time.Second)

		dx := th + 30
		if round%2 == 1 {
			dx = -dx
		}
		out, err := m.Release(models.GestureRelease{DX: dx, VX: 1800})
		if err != nil {
			t.Fatalf("round %d: Release() error = %v", round, err)
		}
		if !out.Committed {
			t.Fatalf("round %d: did not commit", round)
		}
		if out.Hesitation != time.Second {
			t.Errorf("round %d: Hesitation = %v, want 1s", round, out.Hesitation)
		}

		m.CommitComplete()
	}
}

func TestNewMapperAppliesDefaults(t *testing.T) {
	m := NewMapper(Config{}, nil)
	if m.Config() != DefaultConfig() {
		t.Errorf("Config() = %+v, want defaults", m.Config())
	}
}
