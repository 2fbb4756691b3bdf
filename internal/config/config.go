// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package config holds all engine configuration, loaded with Koanf v2 from
// layered sources (defaults, optional YAML file, environment variables).
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: override any setting
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	Deck      DeckConfig      `koanf:"deck"`
	Batch     BatchConfig     `koanf:"batch"`
	Outbox    OutboxConfig    `koanf:"outbox"`
	Media     MediaConfig     `koanf:"media"`
	Supplier  SupplierConfig  `koanf:"supplier"`
	Rating    RatingConfig    `koanf:"rating"`
	NATS      NATSConfig      `koanf:"nats"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment variables:
//   - HTTP_HOST: bind address (default: 0.0.0.0)
//   - HTTP_PORT: listen port (default: 8484)
//   - HTTP_TIMEOUT: read/write timeout (default: 30s)
//   - ENVIRONMENT: development or production (enables stricter checks)
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// APIConfig holds REST surface settings: pagination, response caching, and
// rate limits.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"` // deck/image requests without limit
	MaxPageSize     int           `koanf:"max_page_size"`
	StatsCacheTTL   time.Duration `koanf:"stats_cache_ttl"` // short TTL cache over analytics queries
	RateLimitReqs   int           `koanf:"rate_limit_reqs"` // per IP per window
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	SessionsPerMin  int           `koanf:"sessions_per_min"` // stricter limit on session create
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// SecurityConfig holds authentication settings.
//
// AuthMode values:
//   - "token": session JWTs minted at session create; admin key for
//     analytics/operational endpoints (default)
//   - "none": all endpoints open (development only; rejected when
//     ENVIRONMENT=production)
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"`
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	AdminKey          string        `koanf:"admin_key"` // hashed at startup, never logged
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// DeckConfig tunes the deck engine and the gesture mapper.
//
// The gesture geometry fields mirror the client rendering contract:
// threshold_fraction of the viewport width decides commit vs snap-back,
// max_rotation_deg is reached at a full viewport-width drag, and
// vertical_damping scales dy into the damped vertical translation.
type DeckConfig struct {
	ViewportWidth     float64       `koanf:"viewport_width"`     // default logical width when session omits it
	ThresholdFraction float64       `koanf:"threshold_fraction"` // commit threshold as fraction of viewport width
	MaxRotationDeg    float64       `koanf:"max_rotation_deg"`
	VerticalDamping   float64       `koanf:"vertical_damping"`
	ScaleShrink       float64       `koanf:"scale_shrink"`  // max scale reduction approaching threshold
	VelocityNorm      float64       `koanf:"velocity_norm"` // px/s mapping to confidence 1.0
	Lookahead         int           `koanf:"lookahead"`     // prefetch window size
	LowWaterMark      int           `koanf:"low_water_mark"`
	RefillBatchSize   int           `koanf:"refill_batch_size"` // items requested per refill
	SessionIdleTTL    time.Duration `koanf:"session_idle_ttl"`
	HapticsEnabled    bool          `koanf:"haptics_enabled"`
}

// BatchConfig tunes the decision batcher.
type BatchConfig struct {
	Size          int           `koanf:"size"`           // flush when buffer reaches this count
	FlushInterval time.Duration `koanf:"flush_interval"` // partial-buffer fallback flush
}

// OutboxConfig tunes the durable decision outbox (BadgerDB).
type OutboxConfig struct {
	Path               string        `koanf:"path"`
	InMemory           bool          `koanf:"in_memory"` // testing only
	SyncWrites         bool          `koanf:"sync_writes"`
	RetryInitial       time.Duration `koanf:"retry_initial"`
	RetryMax           time.Duration `koanf:"retry_max"`
	RetryMultiplier    float64       `koanf:"retry_multiplier"`
	MaxAttempts        int           `koanf:"max_attempts"` // then the batch is parked
	CompactionInterval time.Duration `koanf:"compaction_interval"`
	DeliveredTTL       time.Duration `koanf:"delivered_ttl"` // confirmed batches kept this long
}

// MediaConfig tunes the media fetcher and the two cache layers.
type MediaConfig struct {
	MemoryCacheBytes int64         `koanf:"memory_cache_bytes"` // Ristretto MaxCost
	DiskCacheEnabled bool          `koanf:"disk_cache_enabled"`
	DiskCachePath    string        `koanf:"disk_cache_path"`
	EvictionHorizon  int           `koanf:"eviction_horizon"` // item count bound on the disk layer
	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
	Workers          int           `koanf:"workers"`         // prefetch pool size
	RatePerSecond    float64       `koanf:"rate_per_second"` // origin request budget
	RateBurst        int           `koanf:"rate_burst"`
	MaxItemBytes     int64         `koanf:"max_item_bytes"` // oversized assets are rejected
}

// SupplierConfig points at the content supplier (generation orchestrator).
type SupplierConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// RatingConfig points at the preference consumer that receives decision
// batches.
type RatingConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// NATSConfig holds event bus settings. With Enabled=false the bus runs on
// in-process Go channels; with Enabled=true events flow through NATS
// JetStream, either an external server (URL) or the embedded one.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`
	StreamName     string `koanf:"stream_name"`
	DurableName    string `koanf:"durable_name"`
	QueueGroup     string `koanf:"queue_group"`

	// Watermill router middleware settings.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// AnalyticsConfig holds DuckDB settings for the decision store.
type AnalyticsConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"` // ":memory:" for ephemeral
	MaxMemory     string        `koanf:"max_memory"`
	Threads       int           `koanf:"threads"` // 0 = runtime.NumCPU()
	AppendBatch   int           `koanf:"append_batch"`
	AppendFlush   time.Duration `koanf:"append_flush"`
	RetentionDays int           `koanf:"retention_days"` // 0 = keep forever
}

// LoggingConfig holds log level and format settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
