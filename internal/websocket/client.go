// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/deck"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// Flood guard on inbound frames. A finger tracking at display rate
	// produces at most ~120 move frames a second; anything well past
	// that is a misbehaving client.
	frameWindow        = time.Second
	maxFramesPerWindow = 240
)

// SessionEngine is the slice of the deck session the client pumps use.
// Satisfied by *deck.Session.
type SessionEngine interface {
	ID() string
	Begin(ctx context.Context, f models.GestureStart) error
	Move(ctx context.Context, f models.GestureMove) (models.Transform, error)
	Release(ctx context.Context, f models.GestureRelease) (deck.ReleaseResult, error)
	Snapshot(ctx context.Context) (models.DeckSnapshot, error)
}

// Client pumps frames between one websocket connection and its session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	session   SessionEngine
	sessionID string
	send      chan Frame
	frames    *cache.SlidingWindowCounter
}

// NewClient binds a connection to a live session.
func NewClient(hub *Hub, conn *websocket.Conn, session SessionEngine) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		session:   session,
		sessionID: session.ID(),
		send:      make(chan Frame, 64),
		frames:    cache.NewSlidingWindowCounter(frameWindow, 10),
	}
}

// Start begins the read and write pumps and registers with the hub.
func (c *Client) Start() {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump()
}

// readPump decodes inbound frames and drives the session engine.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var raw rawFrame
		if err := c.conn.ReadJSON(&raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("session_id", c.sessionID).Msg("Unexpected websocket close")
			}
			return
		}
		if done := c.handleFrame(raw); done {
			return
		}
	}
}

// handleFrame dispatches one inbound frame. Returns true when the
// session is gone and the connection should close.
func (c *Client) handleFrame(raw rawFrame) bool {
	ctx := context.Background()

	c.frames.IncrementOne()
	if c.frames.Count() > maxFramesPerWindow {
		c.enqueue(Frame{Type: FrameError, Data: ErrorFrame{
			Code:    "rate_limited",
			Message: "too many frames, slow down",
		}})
		return false
	}

	switch raw.Type {
	case FramePing:
		c.enqueue(Frame{Type: FramePong})
		return false

	case FrameGestureBegin:
		var start models.GestureStart
		if err := json.Unmarshal(raw.Data, &start); err != nil {
			c.rejectFrame(raw.Type, err)
			return false
		}
		if err := c.session.Begin(ctx, start); err != nil {
			return c.sessionError(raw.Type, err)
		}

	case FrameGestureMove:
		var move models.GestureMove
		if err := json.Unmarshal(raw.Data, &move); err != nil {
			c.rejectFrame(raw.Type, err)
			return false
		}
		transform, err := c.session.Move(ctx, move)
		if err != nil {
			return c.sessionError(raw.Type, err)
		}
		c.enqueue(Frame{Type: FrameTransformUpdate, Data: transform})

	case FrameGestureRelease:
		var rel models.GestureRelease
		if err := json.Unmarshal(raw.Data, &rel); err != nil {
			c.rejectFrame(raw.Type, err)
			return false
		}
		res, err := c.session.Release(ctx, rel)
		if err != nil {
			return c.sessionError(raw.Type, err)
		}
		c.enqueue(Frame{Type: FrameDecisionResult, Data: DecisionResult{
			Committed: res.Outcome.Committed,
			Decision:  res.Decision,
			Transform: res.Outcome.Transform,
			Deck:      res.Snapshot,
		}})

	case FrameDeckRequest:
		snap, err := c.session.Snapshot(ctx)
		if err != nil {
			return c.sessionError(raw.Type, err)
		}
		c.enqueue(Frame{Type: FrameDeckUpdate, Data: snap})

	default:
		c.enqueue(Frame{Type: FrameError, Data: ErrorFrame{
			Code:    "unknown_frame",
			Message: "unknown frame type: " + raw.Type,
		}})
	}
	return false
}

// sessionError reports an engine error to the client. A closed session
// ends the connection.
func (c *Client) sessionError(frameType string, err error) bool {
	if errors.Is(err, deck.ErrSessionClosed) {
		c.enqueue(Frame{Type: FrameError, Data: ErrorFrame{
			Code:    "session_closed",
			Message: "session is closed",
		}})
		return true
	}
	c.enqueue(Frame{Type: FrameError, Data: ErrorFrame{
		Code:    "gesture_rejected",
		Message: frameType + ": " + err.Error(),
	}})
	return false
}

func (c *Client) rejectFrame(frameType string, err error) {
	c.enqueue(Frame{Type: FrameError, Data: ErrorFrame{
		Code:    "malformed_frame",
		Message: frameType + ": " + err.Error(),
	}})
}

// enqueue drops the frame when the client cannot keep up.
func (c *Client) enqueue(frame Frame) {
	select {
	case c.send <- frame:
	default:
	}
}

// writePump drains the send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				logging.Error().Err(err).Str("session_id", c.sessionID).Msg("Failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
