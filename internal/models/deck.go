// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package models

import "time"

// DeckSnapshot is a read-only view of a session's deck, safe to serialize
// straight to clients. The engine goroutine produces snapshots on demand;
// nothing in a snapshot aliases mutable deck state.
type DeckSnapshot struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	CurrentIndex int            `json:"current_index"` // absolute position, monotonic
	Remaining    int            `json:"remaining"`     // items at or after CurrentIndex
	Upcoming     []UpcomingItem `json:"upcoming"`      // visible window, current card first
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Current returns the active card, or false when the deck is exhausted.
func (s DeckSnapshot) Current() (ContentItem, bool) {
	if len(s.Upcoming) == 0 {
		return ContentItem{}, false
	}
	return s.Upcoming[0].Item, true
}

// UpcomingItem pairs a deck item with its absolute position and media cache
// state, letting clients distinguish ready cards from ones still fetching.
type UpcomingItem struct {
	Item     ContentItem `json:"item"`
	Position int         `json:"position"`
	Cached   bool        `json:"cached"`
}

// SessionInfo summarizes a live session for API responses.
type SessionInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ViewportWidth float64   `json:"viewport_width"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
	Decisions     int       `json:"decisions"`
	Accepts       int       `json:"accepts"`
}

// GenerationRequest asks the supplier to produce fresh content for a user.
// Mirrors the generation service's job submission contract.
type GenerationRequest struct {
	Prompt      string            `json:"prompt"`
	NumImages   int               `json:"num_images"`
	UserID      string            `json:"user_id"`
	StyleParams map[string]string `json:"style_params,omitempty"`
}
