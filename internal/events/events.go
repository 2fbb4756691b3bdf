// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package events is the engine's fan-out bus. Delivery reliability to
// the preference consumer is the outbox's job; this bus exists for
// observers (the analytics appender and the WebSocket broadcaster) and
// loses nothing of record if a message is dropped.
//
// Transport is Watermill: in-process Go channels by default, NATS
// JetStream (external or embedded) for multi-process deployments.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Topics. The swipe. prefix is also the JetStream subject space
// (stream SWIPE binds swipe.>).
const (
	TopicDecisionCommitted = "swipe.decision.committed"
	TopicBatchSealed       = "swipe.batch.sealed"
	TopicBatchDelivered    = "swipe.batch.delivered"
	TopicDeckRefilled      = "swipe.deck.refilled"
	TopicSessionStarted    = "swipe.session.started"
	TopicSessionEnded      = "swipe.session.ended"
	TopicSupplierNotice    = "swipe.supplier.notice"
	TopicPoisonQueue       = "swipe.dlq"
)

// StreamSubjects is what the JetStream stream binds.
var StreamSubjects = []string{"swipe.>"}

// Metadata keys set on every published message.
const (
	MetaSessionID = "session_id"
	MetaUserID    = "user_id"
)

// DecisionEvent fans out one committed decision.
type DecisionEvent struct {
	Decision models.Decision `json:"decision"`
}

// BatchEvent fans out a sealed or delivered batch. Attempts is only set
// on delivery.
type BatchEvent struct {
	Batch    models.DecisionBatch `json:"batch"`
	Attempts int                  `json:"attempts,omitempty"`
}

// DeckEvent fans out a deck refill.
type DeckEvent struct {
	SessionID string `json:"session_id"`
	Added     int    `json:"added"`
	Remaining int    `json:"remaining"`
}

// SessionEvent fans out session lifecycle changes.
type SessionEvent struct {
	Info models.SessionInfo `json:"info"`
}

// NoticeEvent fans out a user-visible supplier problem. The WebSocket
// layer forwards it to the session's client verbatim.
type NoticeEvent struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// NewMessage builds a watermill message with a JSON payload and the
// standard metadata.
func NewMessage(v interface{}, sessionID, userID string) (*message.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if sessionID != "" {
		msg.Metadata.Set(MetaSessionID, sessionID)
	}
	if userID != "" {
		msg.Metadata.Set(MetaUserID, userID)
	}
	return msg, nil
}

// Decode unmarshals a message payload into v.
func Decode(msg *message.Message, v interface{}) error {
	return json.Unmarshal(msg.Payload, v)
}
