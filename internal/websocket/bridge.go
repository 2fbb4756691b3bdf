// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/events"
)

// Bridge forwards bus events to connected clients: supplier notices,
// batch delivery confirmations, and deck refills that happened outside
// a gesture exchange.
type Bridge struct {
	hub *Hub
}

// NewBridge creates the bus-to-websocket bridge.
func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

// Register attaches the bridge's consumers to the event router.
func (b *Bridge) Register(router *events.Router) {
	router.AddConsumer("ws-supplier-notice", events.TopicSupplierNotice, b.onSupplierNotice)
	router.AddConsumer("ws-batch-delivered", events.TopicBatchDelivered, b.onBatchDelivered)
	router.AddConsumer("ws-deck-refilled", events.TopicDeckRefilled, b.onDeckRefilled)
}

func (b *Bridge) onSupplierNotice(_ context.Context, msg *message.Message) error {
	var ev events.NoticeEvent
	if err := events.Decode(msg, &ev); err != nil {
		return err
	}
	b.hub.SendToSession(ev.SessionID, Frame{
		Type: FrameSupplierNotice,
		Data: SupplierNotice{Message: ev.Message, At: ev.At},
	})
	return nil
}

func (b *Bridge) onBatchDelivered(_ context.Context, msg *message.Message) error {
	var ev events.BatchEvent
	if err := events.Decode(msg, &ev); err != nil {
		return err
	}
	b.hub.SendToSession(ev.Batch.SessionID, Frame{
		Type: FrameBatchDelivered,
		Data: BatchDelivered{
			BatchID:   ev.Batch.BatchID.String(),
			Decisions: len(ev.Batch.Decisions),
			Attempts:  ev.Attempts,
		},
	})
	return nil
}

func (b *Bridge) onDeckRefilled(_ context.Context, msg *message.Message) error {
	var ev events.DeckEvent
	if err := events.Decode(msg, &ev); err != nil {
		return err
	}
	b.hub.SendToSession(ev.SessionID, Frame{
		Type: FrameDeckUpdate,
		Data: ev,
	})
	return nil
}
