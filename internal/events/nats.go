// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

const (
	serverReadyTimeout = 30 * time.Second
	streamSetupTimeout = 10 * time.Second

	// dedupeWindow is the JetStream duplicate-detection window keyed on
	// Nats-Msg-Id. Wide enough to absorb a publisher retry burst.
	dedupeWindow = 2 * time.Minute
)

// natsTransport bundles the NATS-backed publisher and subscriber with
// everything that must be torn down with them.
type natsTransport struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	closers    []func() error
}

// newNATSTransport starts the embedded server when configured, ensures
// the stream exists, and builds the watermill publisher/subscriber pair.
func newNATSTransport(cfg config.NATSConfig, logger watermill.LoggerAdapter) (*natsTransport, error) {
	t := &natsTransport{}

	url := cfg.URL
	if cfg.EmbeddedServer {
		es, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		url = es.ClientURL()
		t.closers = append(t.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return es.Shutdown(ctx)
		})
	}
	if url == "" {
		url = natsgo.DefaultURL
	}

	if err := ensureStream(url, cfg); err != nil {
		t.close()
		return nil, err
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		t.close()
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	t.publisher = pub
	t.closers = append(t.closers, pub.Close)

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.StreamName),
				natsgo.DeliverAll(),
			},
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		t.close()
		return nil, fmt.Errorf("create subscriber: %w", err)
	}
	t.subscriber = sub
	t.closers = append(t.closers, sub.Close)

	return t, nil
}

func (t *natsTransport) close() {
	for _, c := range t.closers {
		if err := c(); err != nil {
			logging.Warn().Err(err).Msg("NATS transport teardown")
		}
	}
}

// EmbeddedServer runs NATS in-process for single-binary deployments.
type EmbeddedServer struct {
	server *server.Server
}

func startEmbeddedServer(cfg config.NATSConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName:         "rapid-studio-events",
		Host:               "127.0.0.1",
		Port:               -1,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		NoLog:              true,
		MaxPayload:         1 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(serverReadyTimeout) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server not ready within timeout")
	}
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string { return s.server.ClientURL() }

// Shutdown stops the server and waits for it, bounded by ctx.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureStream creates the stream if missing or updates it to the
// current subject set if present.
func ensureStream(url string, cfg config.NATSConfig) error {
	nc, err := natsgo.Connect(url)
	if err != nil {
		return fmt.Errorf("connect for stream setup: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamSetupTimeout)
	defer cancel()

	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
		Duplicates:  dedupeWindow,
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("look up stream %s: %w", cfg.StreamName, err)
		}
		if _, err := js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
		}
		return nil
	}
	if _, err := js.UpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("update stream %s: %w", cfg.StreamName, err)
	}
	return nil
}
