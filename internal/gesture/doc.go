// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package gesture maps raw drag input to card transforms and swipe
// decisions. It is the authoritative interpretation of the swipe: clients
// stream displacement and velocity samples, the mapper answers with the
// visual state the card should render and, on release, whether the drag
// committed a decision or snaps back.
//
// Gesture Lifecycle:
//
//	GestureStart -> GestureMove* -> GestureRelease
//	     |              |                |
//	     v              v                v
//	  Dragging      Transform      Committing / SnappingBack
//
// The Mapper is a four-state machine (Idle, Dragging, Committing,
// SnappingBack). It is deliberately free of locks: each session's engine
// goroutine owns exactly one Mapper and is the only caller, so all
// synchronization lives in the engine's inbox channel rather than here.
//
// Transform math is pure and stateless (ComputeTransform, Confidence) so
// the rendering contract can be tested independently of the state machine.
// Horizontal displacement drives rotation and the commit decision; vertical
// displacement is damped to a fraction of the drag so the card tracks the
// finger without leaving its lane.
//
// A release at or beyond the commit threshold decides the card: rightward
// displacement accepts, leftward rejects. Decision confidence scales with
// release speed, saturating at VelocityNorm. Hesitation is measured on the
// server clock from drag start to release, so client clock skew never
// distorts the analytics.
package gesture
