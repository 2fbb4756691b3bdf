// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package events

import (
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// EngineSink adapts the engine's callback interfaces onto bus topics.
// The session engine calls these from its own goroutine, so publishes
// must stay cheap; the gochannel transport buffers and NATS publishes
// are connection writes.
type EngineSink struct {
	bus *Bus
}

// NewEngineSink returns a sink publishing to bus.
func NewEngineSink(bus *Bus) *EngineSink {
	return &EngineSink{bus: bus}
}

func (s *EngineSink) DecisionCommitted(d models.Decision) {
	s.publish(TopicDecisionCommitted, DecisionEvent{Decision: d}, d.SessionID, d.UserID)
}

func (s *EngineSink) BatchSealed(b models.DecisionBatch) {
	s.publish(TopicBatchSealed, BatchEvent{Batch: b}, b.SessionID, b.UserID)
}

// BatchDelivered satisfies the outbox's delivery notification hook.
func (s *EngineSink) BatchDelivered(b models.DecisionBatch, attempts int) {
	s.publish(TopicBatchDelivered, BatchEvent{Batch: b, Attempts: attempts}, b.SessionID, b.UserID)
}

func (s *EngineSink) SessionStarted(info models.SessionInfo) {
	s.publish(TopicSessionStarted, SessionEvent{Info: info}, info.ID, info.UserID)
}

func (s *EngineSink) SessionEnded(info models.SessionInfo) {
	s.publish(TopicSessionEnded, SessionEvent{Info: info}, info.ID, info.UserID)
}

func (s *EngineSink) DeckRefilled(sessionID string, added, remaining int) {
	s.publish(TopicDeckRefilled, DeckEvent{
		SessionID: sessionID,
		Added:     added,
		Remaining: remaining,
	}, sessionID, "")
}

// SupplierNotice publishes a user-visible supplier problem for the
// session's client.
func (s *EngineSink) SupplierNotice(sessionID, msg string) {
	s.publish(TopicSupplierNotice, NoticeEvent{
		SessionID: sessionID,
		Message:   msg,
		At:        time.Now().UTC(),
	}, sessionID, "")
}

func (s *EngineSink) publish(topic string, v interface{}, sessionID, userID string) {
	if err := s.bus.Publish(topic, v, sessionID, userID); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Event publish failed")
	}
}
