// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package main is the swipe feed engine server.
//
// The engine serves card decks of generated images to mobile clients,
// maps swipe gestures to accept/reject decisions, batches decisions,
// and delivers them durably to the preference consumer. Components are
// wired here and run under a suture supervision tree:
//
//   - data layer: outbox delivery and compaction, the analytics appender
//   - feed layer: event router, deck manager, prefetch pool, websocket hub
//   - api layer: the HTTP server
//
// Configuration is loaded with Koanf v2 from defaults, an optional
// config.yaml, and environment variables (highest priority). The
// essentials:
//
//	export HTTP_PORT=8484
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_KEY=change-me-operator-key
//	export SUPPLIER_URL=http://supplier:9000
//	export RATING_URL=http://rating:9100
//	./rapid-studio
//
// For development, AUTH_MODE=none opens every endpoint; production
// refuses that mode at startup.
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// listener drains, open sessions flush their partial decision batches
// to the outbox, and the stores close last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/analytics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/api"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/auth"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/authz"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/batcher"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/deck"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/events"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/gesture"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/media"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/middleware"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/outbox"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/prefetch"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/rating"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/supervisor"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/supplier"
	ws "github.com/jeffmichaeljohnson-tech/rapid-studio/internal/websocket"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("outbox_path", cfg.Outbox.Path).
		Bool("analytics", cfg.Analytics.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting swipe feed engine")

	// Durable decision store. Opens before anything that appends to it.
	ob, err := outbox.Open(outboxConfig(cfg.Outbox))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open outbox")
	}
	defer func() {
		if err := ob.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing outbox")
		}
	}()

	// Fold decisions stranded by a crash into deliverable batches before
	// the delivery loop starts.
	recovered, err := ob.Recover(context.Background())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to recover outbox")
	}
	if recovered.OrphanedDecisions > 0 {
		logging.Info().
			Int("orphaned_decisions", recovered.OrphanedDecisions).
			Int("recovered_batches", recovered.RecoveredBatches).
			Msg("OUTBOX: Recovered decisions from previous run")
	}

	// Event bus: in-process channels by default, JetStream when enabled.
	bus, err := events.NewBus(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	sink := events.NewEngineSink(bus)

	router, err := events.NewRouter(bus, cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event router")
	}

	// Media caching and prefetch.
	mediaCache, err := media.NewCache(mediaConfig(cfg.Media))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open media cache")
	}
	defer func() {
		if err := mediaCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing media cache")
		}
	}()
	fetcher := media.NewFetcher(mediaCache)
	prefetcher := prefetch.New(prefetch.Config{
		Workers:      cfg.Media.Workers,
		FetchTimeout: cfg.Media.FetchTimeout,
	}, fetcher)

	// External peers.
	supplierClient := supplier.New(supplier.Config{
		URL:     cfg.Supplier.URL,
		APIKey:  cfg.Supplier.APIKey,
		Timeout: cfg.Supplier.Timeout,
	})
	ratingClient := rating.New(rating.Config{
		URL:     cfg.Rating.URL,
		APIKey:  cfg.Rating.APIKey,
		Timeout: cfg.Rating.Timeout,
	})

	// Realtime channel. The hub doubles as the haptics sink.
	hub := ws.NewHub()
	ws.NewBridge(hub).Register(router)

	manager := deck.NewManager(deckConfig(cfg), deck.Deps{
		Outbox:   ob,
		Prefetch: prefetcher,
		Media:    mediaCache,
		Haptics:  hub,
		Events:   sink,
	}, supplierClient, sink)

	// Optional analytics archive.
	var store *analytics.Store
	var appender *analytics.Appender
	if cfg.Analytics.Enabled {
		store, err = analytics.Open(cfg.Analytics)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open analytics store")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing analytics store")
			}
		}()
		appender, err = analytics.NewAppender(store, cfg.Analytics)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create analytics appender")
		}
		appender.Register(router)
	}

	deliverer := outbox.NewDeliverer(ob, ratingClient, sink)
	compactor := outbox.NewCompactor(ob)

	// Authentication and authorization.
	var tokens api.TokenMinter
	jwtManager, err := auth.NewJWTManager(cfg.Security)
	if err != nil {
		if cfg.Security.AuthMode != "none" {
			logging.Fatal().Err(err).Msg("Failed to initialize session tokens")
		}
		logging.Warn().Msg("Session tokens disabled (auth mode none)")
	} else {
		tokens = jwtManager
	}
	adminVerifier, err := auth.NewAdminVerifier(cfg.Security.AdminKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize admin key")
	}
	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}
	defer enforcer.Close()

	// HTTP surface.
	latency := middleware.NewLatencyMonitor(0)
	handler := api.NewHandler(api.HandlerDeps{
		Manager:   manager,
		Tokens:    tokens,
		Fetcher:   fetcher,
		Hub:       hub,
		Upgrader:  ws.NewUpgrader(cfg.API.CORSOrigins),
		Generator: supplierClient,
		Stats:     statsSource(store),
		Latency:   latency,
		Outbox:    ob,
		Ready:     readyChecks(ob, store),
		Version:   version,
	})
	httpRouter := api.NewRouter(api.RouterDeps{
		Config:  cfg,
		Handler: handler,
		Auth:    auth.NewMiddleware(jwtManager, adminVerifier, cfg.Security.AuthMode),
		Authz:   authz.NewMiddleware(enforcer),
		Latency: latency,
	})
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(deliverer)
	tree.AddDataService(compactor)
	if appender != nil {
		tree.AddDataService(appender)
	}
	tree.AddFeedService(router)
	tree.AddFeedService(manager)
	tree.AddFeedService(hub)
	tree.AddFeedService(prefetcher)
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Engine stopped gracefully")
}

func outboxConfig(c config.OutboxConfig) outbox.Config {
	return outbox.Config{
		Path:               c.Path,
		InMemory:           c.InMemory,
		SyncWrites:         c.SyncWrites,
		RetryInitial:       c.RetryInitial,
		RetryMax:           c.RetryMax,
		RetryMultiplier:    c.RetryMultiplier,
		MaxAttempts:        c.MaxAttempts,
		CompactionInterval: c.CompactionInterval,
		DeliveredTTL:       c.DeliveredTTL,
	}
}

func mediaConfig(c config.MediaConfig) media.Config {
	return media.Config{
		MemoryCacheBytes: c.MemoryCacheBytes,
		DiskCacheEnabled: c.DiskCacheEnabled,
		DiskCachePath:    c.DiskCachePath,
		EvictionHorizon:  c.EvictionHorizon,
		MaxItemBytes:     c.MaxItemBytes,
		FetchTimeout:     c.FetchTimeout,
		RatePerSecond:    c.RatePerSecond,
		RateBurst:        c.RateBurst,
	}
}

func deckConfig(cfg *config.Config) deck.Config {
	return deck.Config{
		Lookahead:       cfg.Deck.Lookahead,
		LowWaterMark:    cfg.Deck.LowWaterMark,
		RefillBatchSize: cfg.Deck.RefillBatchSize,
		SessionIdleTTL:  cfg.Deck.SessionIdleTTL,
		HapticsEnabled:  cfg.Deck.HapticsEnabled,
		Gesture: gesture.Config{
			ViewportWidth:     cfg.Deck.ViewportWidth,
			ThresholdFraction: cfg.Deck.ThresholdFraction,
			MaxRotationDeg:    cfg.Deck.MaxRotationDeg,
			VerticalDamping:   cfg.Deck.VerticalDamping,
			ScaleShrink:       cfg.Deck.ScaleShrink,
			VelocityNorm:      cfg.Deck.VelocityNorm,
		},
		Batch: batcher.Config{
			Size:          cfg.Batch.Size,
			FlushInterval: cfg.Batch.FlushInterval,
		},
	}
}

// statsSource avoids handing the api a non-nil interface wrapping a nil
// *analytics.Store.
func statsSource(store *analytics.Store) api.StatsSource {
	if store == nil {
		return nil
	}
	return store
}

func readyChecks(ob *outbox.Outbox, store *analytics.Store) []api.ReadyCheck {
	checks := []api.ReadyCheck{
		{Name: "outbox", Check: func(ctx context.Context) error {
			_, err := ob.Stats()
			return err
		}},
	}
	if store != nil {
		checks = append(checks, api.ReadyCheck{Name: "analytics", Check: store.Ping})
	}
	return checks
}
