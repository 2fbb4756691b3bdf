// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sony/gobreaker/v2"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
)

// Bus is the process event bus. Publish failures trip a breaker so a
// wedged transport cannot stall the session engine; events are
// best-effort by design and the caller never blocks on delivery.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     watermill.LoggerAdapter

	// closers shut the transport down, in order.
	closers []func() error
}

// NewBus builds the bus for the configured transport. With NATS
// disabled it runs on in-process Go channels, which suits the
// single-binary deployment and all tests.
func NewBus(cfg config.NATSConfig) (*Bus, error) {
	logger := NewLoggerAdapter()

	b := &Bus{
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "event-bus",
			MaxRequests: 3,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.RecordBreakerState(name, to.String())
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Event bus breaker state changed")
			},
		}),
	}

	if !cfg.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: false,
		}, logger)
		b.publisher = ch
		b.subscriber = ch
		b.closers = append(b.closers, ch.Close)
		return b, nil
	}

	nc, err := newNATSTransport(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("nats transport: %w", err)
	}
	b.publisher = nc.publisher
	b.subscriber = nc.subscriber
	b.closers = nc.closers
	return b, nil
}

// Publish marshals v and publishes it on topic. Errors are reported to
// the caller but a dropped event is not fatal: everything of record
// lives in the outbox, not on the bus.
func (b *Bus) Publish(topic string, v interface{}, sessionID, userID string) error {
	msg, err := NewMessage(v, sessionID, userID)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.publisher.Publish(topic, msg)
	})
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message channel for topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, topic)
}

// Publisher exposes the raw publisher for router construction.
func (b *Bus) Publisher() message.Publisher { return b.publisher }

// Subscriber exposes the raw subscriber for router construction.
func (b *Bus) Subscriber() message.Subscriber { return b.subscriber }

// Close shuts the transport down.
func (b *Bus) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
