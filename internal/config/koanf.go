// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/rapid-studio/config.yaml",
	"/etc/rapid-studio/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8484,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			DefaultPageSize: 25,
			MaxPageSize:     100,
			StatsCacheTTL:   30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			SessionsPerMin:  10,
			CORSOrigins:     []string{"*"},
		},
		Security: SecurityConfig{
			AuthMode:          "token",
			JWTSecret:         "",
			TokenTTL:          24 * time.Hour,
			AdminKey:          "",
			RateLimitDisabled: false,
			TrustedProxies:    []string{},
		},
		Deck: DeckConfig{
			ViewportWidth:     390,
			ThresholdFraction: 0.28, // inside the 25-30% band clients were tuned for
			MaxRotationDeg:    30,
			VerticalDamping:   0.3,
			ScaleShrink:       0.05,
			VelocityNorm:      2000,
			Lookahead:         50,
			LowWaterMark:      10,
			RefillBatchSize:   25,
			SessionIdleTTL:    30 * time.Minute,
			HapticsEnabled:    true,
		},
		Batch: BatchConfig{
			Size:          10,
			FlushInterval: 30 * time.Second,
		},
		Outbox: OutboxConfig{
			Path:               "/data/outbox",
			InMemory:           false,
			SyncWrites:         true,
			RetryInitial:       5 * time.Second,
			RetryMax:           10 * time.Minute,
			RetryMultiplier:    2.0,
			MaxAttempts:        100,
			CompactionInterval: 1 * time.Hour,
			DeliveredTTL:       24 * time.Hour,
		},
		Media: MediaConfig{
			MemoryCacheBytes: 256 << 20, // 256MB
			DiskCacheEnabled: true,
			DiskCachePath:    "/data/media-cache",
			EvictionHorizon:  200, // 4x lookahead
			FetchTimeout:     15 * time.Second,
			Workers:          4,
			RatePerSecond:    20,
			RateBurst:        40,
			MaxItemBytes:     8 << 20, // matches bus max payload
		},
		Supplier: SupplierConfig{
			URL:     "",
			APIKey:  "",
			Timeout: 10 * time.Second,
		},
		Rating: RatingConfig{
			URL:     "",
			APIKey:  "",
			Timeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:        false, // in-process bus by default; JetStream is opt-in
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,  // 1GB
			MaxStore:       10 << 30, // 10GB
			StreamName:     "SWIPE",
			DurableName:    "swipe-analytics",
			QueueGroup:     "swipe-processors",

			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterPoisonQueueEnabled:   true,
			RouterPoisonQueueTopic:     "swipe.dlq",
			RouterCloseTimeout:         30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			Path:          "/data/rapid-studio.duckdb",
			MaxMemory:     "2GB",
			Threads:       0,
			AppendBatch:   500,
			AppendFlush:   5 * time.Second,
			RetentionDays: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables
	// HTTP_PORT -> server.port, DECK_LOOKAHEAD -> deck.lookahead, ...
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"api.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice (from YAML): leave alone.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return empty string and are skipped, which keeps random
// environment noise out of the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// API
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"api_stats_cache_ttl":   "api.stats_cache_ttl",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"sessions_per_minute":   "api.sessions_per_min",
		"cors_origins":          "api.cors_origins",

		// Security
		"auth_mode":          "security.auth_mode",
		"jwt_secret":         "security.jwt_secret",
		"token_ttl":          "security.token_ttl",
		"admin_key":          "security.admin_key",
		"disable_rate_limit": "security.rate_limit_disabled",
		"trusted_proxies":    "security.trusted_proxies",

		// Deck / gesture mapper
		"deck_viewport_width":     "deck.viewport_width",
		"deck_threshold_fraction": "deck.threshold_fraction",
		"deck_max_rotation_deg":   "deck.max_rotation_deg",
		"deck_vertical_damping":   "deck.vertical_damping",
		"deck_scale_shrink":       "deck.scale_shrink",
		"deck_velocity_norm":      "deck.velocity_norm",
		"deck_lookahead":          "deck.lookahead",
		"deck_low_water_mark":     "deck.low_water_mark",
		"deck_refill_batch_size":  "deck.refill_batch_size",
		"deck_session_idle_ttl":   "deck.session_idle_ttl",
		"deck_haptics_enabled":    "deck.haptics_enabled",

		// Batcher
		"batch_size":           "batch.size",
		"batch_flush_interval": "batch.flush_interval",

		// Outbox
		"outbox_path":                "outbox.path",
		"outbox_in_memory":           "outbox.in_memory",
		"outbox_sync_writes":         "outbox.sync_writes",
		"outbox_retry_initial":       "outbox.retry_initial",
		"outbox_retry_max":           "outbox.retry_max",
		"outbox_retry_multiplier":    "outbox.retry_multiplier",
		"outbox_max_attempts":        "outbox.max_attempts",
		"outbox_compaction_interval": "outbox.compaction_interval",
		"outbox_delivered_ttl":       "outbox.delivered_ttl",

		// Media cache / fetcher
		"media_memory_cache_bytes": "media.memory_cache_bytes",
		"media_disk_cache_enabled": "media.disk_cache_enabled",
		"media_disk_cache_path":    "media.disk_cache_path",
		"media_eviction_horizon":   "media.eviction_horizon",
		"media_fetch_timeout":      "media.fetch_timeout",
		"media_workers":            "media.workers",
		"media_rate_per_second":    "media.rate_per_second",
		"media_rate_burst":         "media.rate_burst",
		"media_max_item_bytes":     "media.max_item_bytes",

		// Supplier
		"supplier_url":     "supplier.url",
		"supplier_api_key": "supplier.api_key",
		"supplier_timeout": "supplier.timeout",

		// Rating consumer
		"rating_url":     "rating.url",
		"rating_api_key": "rating.api_key",
		"rating_timeout": "rating.timeout",

		// NATS / event bus
		"nats_enabled":               "nats.enabled",
		"nats_url":                   "nats.url",
		"nats_embedded":              "nats.embedded_server",
		"nats_store_dir":             "nats.store_dir",
		"nats_max_memory":            "nats.max_memory",
		"nats_max_store":             "nats.max_store",
		"nats_stream_name":           "nats.stream_name",
		"nats_durable_name":          "nats.durable_name",
		"nats_queue_group":           "nats.queue_group",
		"nats_router_retry_count":    "nats.router_retry_count",
		"nats_router_retry_interval": "nats.router_retry_initial_interval",
		"nats_router_poison_enabled": "nats.router_poison_queue_enabled",
		"nats_router_poison_topic":   "nats.router_poison_queue_topic",
		"nats_router_close_timeout":  "nats.router_close_timeout",

		// Analytics / DuckDB
		"analytics_enabled":        "analytics.enabled",
		"duckdb_path":              "analytics.path",
		"duckdb_max_memory":        "analytics.max_memory",
		"duckdb_threads":           "analytics.threads",
		"analytics_append_batch":   "analytics.append_batch",
		"analytics_append_flush":   "analytics.append_flush",
		"analytics_retention_days": "analytics.retention_days",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
