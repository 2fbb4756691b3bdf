// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package websocket carries the realtime gesture channel. Each device
// opens one connection per session, streams gesture frames in, and
// receives transforms, decision results, haptic pulses, and supplier
// notices back. The hub routes outbound frames by session ID and doubles
// as the deck engine's haptics sink.
package websocket

import (
	"context"
	"sync"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

// Hub maintains the set of active clients keyed by session ID.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	outbound   chan sessionFrame
}

type sessionFrame struct {
	sessionID string
	frame     Frame
}

// NewHub creates a hub. Run it under a supervisor via Serve.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		outbound:   make(chan sessionFrame, 256),
	}
}

// Serve runs the hub loop until the context is canceled, then closes
// every client. Lifecycle events take priority over outbound frames so
// client state is settled before frames route.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case sf := <-h.outbound:
			h.deliver(sf)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

// SendToSession queues a frame for every client attached to the session.
// Drops the frame when the hub's outbound queue is full; the websocket
// channel is best-effort feedback, the outbox holds the durable record.
func (h *Hub) SendToSession(sessionID string, frame Frame) {
	select {
	case h.outbound <- sessionFrame{sessionID: sessionID, frame: frame}:
	default:
		logging.Warn().
			Str("session_id", sessionID).
			Str("frame_type", frame.Type).
			Msg("Hub outbound queue full, dropping frame")
	}
}

// Pulse implements the deck engine's haptics sink.
func (h *Hub) Pulse(sessionID, kind string, intensity float64) {
	h.SendToSession(sessionID, Frame{
		Type: FrameHapticPulse,
		Data: HapticPulse{Kind: kind, Intensity: intensity},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		clients = make(map[*Client]bool)
		h.sessions[client.sessionID] = clients
	}
	clients[client] = true
	h.mu.Unlock()

	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", h.ClientCount()).
		Msg("Websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if clients, ok := h.sessions[client.sessionID]; ok {
		if _, present := clients[client]; present {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.sessions, client.sessionID)
		}
	}
	h.mu.Unlock()

	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", h.ClientCount()).
		Msg("Websocket client disconnected")
}

func (h *Hub) deliver(sf sessionFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.sessions[sf.sessionID] {
		select {
		case client.send <- sf.frame:
		default:
			// Slow client; its pump will unregister on close.
			logging.Debug().
				Str("session_id", sf.sessionID).
				Msg("Client send buffer full, dropping frame")
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := 0
	for sessionID, clients := range h.sessions {
		for client := range clients {
			close(client.send)
			closed++
		}
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", closed).
		Msg("Websocket hub stopped")
}
