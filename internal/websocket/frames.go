// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package websocket

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Inbound frame types, sent by the device while a session is open.
const (
	FrameGestureBegin   = "gesture.begin"
	FrameGestureMove    = "gesture.move"
	FrameGestureRelease = "gesture.release"
	FrameDeckRequest    = "deck.request"
	FramePing           = "ping"
)

// Outbound frame types.
const (
	FrameTransformUpdate = "transform.update"
	FrameDecisionResult  = "decision.result"
	FrameDeckUpdate      = "deck.update"
	FrameHapticPulse     = "haptic.pulse"
	FrameSupplierNotice  = "supplier.notice"
	FrameBatchDelivered  = "batch.delivered"
	FramePong            = "pong"
	FrameError           = "error"
)

// Frame is the wire envelope in both directions. Inbound Data is decoded
// per Type; outbound Data is the payload marshalled with the envelope.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// rawFrame defers payload decoding until the type is known.
type rawFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecisionResult tells the device how a release landed.
type DecisionResult struct {
	Committed bool             `json:"committed"`
	Decision  *models.Decision `json:"decision,omitempty"`
	Transform models.Transform `json:"transform"`
	Deck      models.DeckSnapshot `json:"deck"`
}

// HapticPulse mirrors the gesture engine's feedback cues.
type HapticPulse struct {
	Kind      string  `json:"kind"`
	Intensity float64 `json:"intensity"`
}

// SupplierNotice is a user-visible upstream problem.
type SupplierNotice struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// BatchDelivered confirms a sealed batch reached the preference service.
type BatchDelivered struct {
	BatchID   string `json:"batch_id"`
	Decisions int    `json:"decisions"`
	Attempts  int    `json:"attempts"`
}

// ErrorFrame reports a rejected inbound frame.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
