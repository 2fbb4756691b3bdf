// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
)

// Router drives the consumer side of the bus: each registered consumer
// gets panic recovery, exponential retry, and poison-queue routing for
// messages that keep failing. It runs as a supervised service.
type Router struct {
	router *message.Router
	bus    *Bus
}

// Consumer handles messages from one topic. A nil error acks the
// message; an error after all retries sends it to the poison topic.
type Consumer func(ctx context.Context, msg *message.Message) error

// NewRouter builds the router over the bus's transport.
func NewRouter(bus *Bus, cfg config.NATSConfig) (*Router, error) {
	closeTimeout := cfg.RouterCloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 30 * time.Second
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: closeTimeout,
	}, bus.logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)
	wmRouter.AddMiddleware(middleware.CorrelationID)

	retryCount := cfg.RouterRetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryInitial := cfg.RouterRetryInitialInterval
	if retryInitial <= 0 {
		retryInitial = 100 * time.Millisecond
	}
	retry := middleware.Retry{
		MaxRetries:      retryCount,
		InitialInterval: retryInitial,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Logger:          bus.logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.RouterPoisonQueueEnabled {
		topic := cfg.RouterPoisonQueueTopic
		if topic == "" {
			topic = TopicPoisonQueue
		}
		poison, err := middleware.PoisonQueue(bus.publisher, topic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	return &Router{router: wmRouter, bus: bus}, nil
}

// AddConsumer registers a no-output handler for topic.
func (r *Router) AddConsumer(name, topic string, consumer Consumer) {
	r.router.AddNoPublisherHandler(name, topic, r.bus.subscriber,
		func(msg *message.Message) error {
			return consumer(msg.Context(), msg)
		})
}

// Serve runs the router until ctx is canceled. Implements the
// supervisor service contract.
func (r *Router) Serve(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed. Tests use it to
// avoid publishing before the consumers are up.
func (r *Router) Running() <-chan struct{} { return r.router.Running() }

func (r *Router) String() string { return "event-router" }

// Close stops the router outside supervision.
func (r *Router) Close() error { return r.router.Close() }
