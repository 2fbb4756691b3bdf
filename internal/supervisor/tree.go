// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package supervisor arranges the engine's long-running components into
// a suture v4 supervision tree. Components implement suture.Service
// (Serve(ctx) error plus fmt.Stringer) and are restarted with backoff
// when they fail.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by all layers.
type TreeConfig struct {
	// FailureThreshold is the failure count that triggers backoff.
	FailureThreshold float64

	// FailureDecay is the failure count half-life in seconds.
	FailureDecay float64

	// FailureBackoff is how long a tripped supervisor waits before
	// restarting its children.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful shutdown per service.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the engine's three-layer supervision tree:
//
//   - data: durable state (outbox delivery and compaction, the
//     analytics appender)
//   - feed: the event router, deck manager, prefetch orchestrator, and
//     websocket hub
//   - api: the HTTP server
//
// A crash in the feed layer restarts only feed components; the outbox
// keeps its durable record and the API keeps answering.
type Tree struct {
	root *suture.Supervisor
	data *suture.Supervisor
	feed *suture.Supervisor
	api  *suture.Supervisor

	config TreeConfig
}

// NewTree builds the tree. The slog logger feeds suture's event hook;
// wrap the zerolog global with logging.NewSlogHandler.
func NewTree(logger *slog.Logger, config TreeConfig) (*Tree, error) {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	// sutureslog's hook constructor has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("rapid-studio", rootSpec)
	data := suture.New("data-layer", childSpec)
	feed := suture.New("feed-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	// Children inherit the root's event hook when added.
	root.Add(data)
	root.Add(feed)
	root.Add(api)

	return &Tree{root: root, data: data, feed: feed, api: api, config: config}, nil
}

// Root exposes the root supervisor.
func (t *Tree) Root() *suture.Supervisor { return t.root }

// AddDataService supervises a durable-state component.
func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddFeedService supervises a feed-plane component.
func (t *Tree) AddFeedService(svc suture.Service) suture.ServiceToken {
	return t.feed.Add(svc)
}

// AddAPIService supervises the HTTP surface.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine and reports its exit.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored shutdown, for
// post-shutdown diagnostics.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
