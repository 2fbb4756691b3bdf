// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package gesture

import (
	"math"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Config holds the tuning constants for gesture interpretation. The zero
// value is not usable directly; call withDefaults (done by NewMapper) or
// start from DefaultConfig.
type Config struct {
	ViewportWidth     float64 // Logical pixel width the client reports for its screen
	ThresholdFraction float64 // Commit threshold as a fraction of viewport width
	MaxRotationDeg    float64 // Rotation reached when |dx| equals the viewport width
	VerticalDamping   float64 // Fraction of dy the card actually travels
	ScaleShrink       float64 // Scale lost as the drag approaches the threshold
	VelocityNorm      float64 // Release speed (px/s) that maps to confidence 1.0
}

// DefaultConfig returns the production tuning. The threshold fraction sits
// inside the 25-30% band clients were calibrated against.
func DefaultConfig() Config {
	return Config{
		ViewportWidth:     390,
		ThresholdFraction: 0.28,
		MaxRotationDeg:    30,
		VerticalDamping:   0.3,
		ScaleShrink:       0.05,
		VelocityNorm:      2000,
	}
}

// withDefaults replaces zero or negative fields with production defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = d.ViewportWidth
	}
	if c.ThresholdFraction <= 0 {
		c.ThresholdFraction = d.ThresholdFraction
	}
	if c.MaxRotationDeg <= 0 {
		c.MaxRotationDeg = d.MaxRotationDeg
	}
	if c.VerticalDamping <= 0 {
		c.VerticalDamping = d.VerticalDamping
	}
	if c.ScaleShrink <= 0 {
		c.ScaleShrink = d.ScaleShrink
	}
	if c.VelocityNorm <= 0 {
		c.VelocityNorm = d.VelocityNorm
	}
	return c
}

// ThresholdPx returns the horizontal displacement, in logical pixels, at
// which a release commits a decision.
func (c Config) ThresholdPx() float64 {
	return c.ViewportWidth * c.ThresholdFraction
}

// ComputeTransform maps a drag displacement to the card's visual state.
//
// The transform is a pure function of displacement so every client renders
// identical feedback for the same drag:
//   - TranslateX follows the finger exactly
//   - TranslateY is damped by VerticalDamping
//   - RotationDeg interpolates linearly from 0 at rest to MaxRotationDeg
//     when |dx| reaches the viewport width, clamped beyond that, signed
//     with the drag direction
//   - Scale shrinks linearly from 1.0 to 1.0-ScaleShrink as |dx|
//     approaches the commit threshold, then holds
//
// Examples with the default tuning (viewport 390, threshold 109.2):
//   - ComputeTransform(cfg, 0, 0) = identity
//   - ComputeTransform(cfg, 195, 0) = tx 195, rotation +15, scale 0.95
//   - ComputeTransform(cfg, -390, 100) = tx -390, ty 30, rotation -30
func ComputeTransform(cfg Config, dx, dy float64) models.Transform {
	progress := math.Min(1, math.Abs(dx)/cfg.ThresholdPx())
	return models.Transform{
		TranslateX:  dx,
		TranslateY:  dy * cfg.VerticalDamping,
		RotationDeg: cfg.MaxRotationDeg * clamp(dx/cfg.ViewportWidth, -1, 1),
		Scale:       1.0 - cfg.ScaleShrink*progress,
	}
}

// Confidence maps a release velocity to a decision confidence in [0, 1].
// Speed matters, not direction: a fast fling in either direction signals a
// deliberate choice. Confidence saturates at VelocityNorm px/s.
func Confidence(cfg Config, vx float64) float64 {
	return math.Min(1, math.Abs(vx)/cfg.VelocityNorm)
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
