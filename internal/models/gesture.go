// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package models

import "time"

// Direction is the binary outcome of a committed swipe.
type Direction string

const (
	DirectionAccept Direction = "accept" // rightward release
	DirectionReject Direction = "reject" // leftward release
)

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	return d == DirectionAccept || d == DirectionReject
}

// Score maps the direction to the +1/-1 rating score the preference
// consumer expects.
func (d Direction) Score() int {
	if d == DirectionAccept {
		return 1
	}
	return -1
}

// GestureStart begins a drag on the current card. Displacement is zero by
// definition at start; only the timestamp matters (hesitation measurement
// starts here).
type GestureStart struct {
	At time.Time `json:"at"`
}

// GestureMove reports the finger's cumulative displacement from the touch
// origin and its instantaneous velocity. Clients send these continuously
// while dragging; the engine answers each with a Transform.
//
// Units: DX/DY in logical pixels, VX/VY in pixels per second. Positive DX is
// rightward, positive DY is downward.
type GestureMove struct {
	DX float64   `json:"dx"`
	DY float64   `json:"dy"`
	VX float64   `json:"vx"`
	VY float64   `json:"vy"`
	At time.Time `json:"at"`
}

// GestureRelease ends a drag. The engine decides commit vs snap-back from
// the final displacement; velocity at release feeds decision confidence.
type GestureRelease struct {
	DX float64   `json:"dx"`
	DY float64   `json:"dy"`
	VX float64   `json:"vx"`
	VY float64   `json:"vy"`
	At time.Time `json:"at"`
}

// Transform is the visual state the active card should render with for a
// given drag displacement. It is a pure function of the gesture, computed
// server-side so every client renders identical feedback.
//
// RotationDeg is positive clockwise. Scale 1.0 is the resting size; the
// shrink toward the commit threshold is the "about to decide" cue.
type Transform struct {
	TranslateX  float64 `json:"translate_x"`
	TranslateY  float64 `json:"translate_y"`
	RotationDeg float64 `json:"rotation_deg"`
	Scale       float64 `json:"scale"`
}

// IdentityTransform is the resting card state (and the snap-back target).
func IdentityTransform() Transform {
	return Transform{Scale: 1.0}
}
