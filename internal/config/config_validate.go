// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateDeck(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateOutbox(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "token":
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=token")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters (got %d)", len(c.Security.JWTSecret))
		}
		if c.Security.TokenTTL <= 0 {
			return fmt.Errorf("TOKEN_TTL must be positive")
		}
	case "none":
		if c.Server.IsProduction() {
			return fmt.Errorf("AUTH_MODE=none is not allowed when ENVIRONMENT=production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be token or none, got %q", c.Security.AuthMode)
	}
	return nil
}

func (c *Config) validateDeck() error {
	d := c.Deck
	if d.ViewportWidth <= 0 {
		return fmt.Errorf("DECK_VIEWPORT_WIDTH must be positive")
	}
	if d.ThresholdFraction < 0.05 || d.ThresholdFraction > 0.9 {
		return fmt.Errorf("DECK_THRESHOLD_FRACTION must be between 0.05 and 0.9, got %f", d.ThresholdFraction)
	}
	if d.MaxRotationDeg <= 0 || d.MaxRotationDeg > 90 {
		return fmt.Errorf("DECK_MAX_ROTATION_DEG must be in (0, 90], got %f", d.MaxRotationDeg)
	}
	if d.VerticalDamping < 0 || d.VerticalDamping > 1 {
		return fmt.Errorf("DECK_VERTICAL_DAMPING must be between 0 and 1, got %f", d.VerticalDamping)
	}
	if d.ScaleShrink < 0 || d.ScaleShrink > 0.5 {
		return fmt.Errorf("DECK_SCALE_SHRINK must be between 0 and 0.5, got %f", d.ScaleShrink)
	}
	if d.VelocityNorm <= 0 {
		return fmt.Errorf("DECK_VELOCITY_NORM must be positive")
	}
	if d.Lookahead < 1 {
		return fmt.Errorf("DECK_LOOKAHEAD must be at least 1")
	}
	if d.LowWaterMark < 0 || d.LowWaterMark > d.Lookahead {
		return fmt.Errorf("DECK_LOW_WATER_MARK must be between 0 and DECK_LOOKAHEAD (%d)", d.Lookahead)
	}
	if d.RefillBatchSize < 1 {
		return fmt.Errorf("DECK_REFILL_BATCH_SIZE must be at least 1")
	}
	if d.SessionIdleTTL <= 0 {
		return fmt.Errorf("DECK_SESSION_IDLE_TTL must be positive")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Size < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("BATCH_FLUSH_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateOutbox() error {
	o := c.Outbox
	if o.Path == "" && !o.InMemory {
		return fmt.Errorf("OUTBOX_PATH is required unless OUTBOX_IN_MEMORY=true")
	}
	if o.RetryInitial <= 0 {
		return fmt.Errorf("OUTBOX_RETRY_INITIAL must be positive")
	}
	if o.RetryMax < o.RetryInitial {
		return fmt.Errorf("OUTBOX_RETRY_MAX must be >= OUTBOX_RETRY_INITIAL")
	}
	if o.RetryMultiplier < 1.0 {
		return fmt.Errorf("OUTBOX_RETRY_MULTIPLIER must be >= 1.0")
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) validateMedia() error {
	m := c.Media
	if m.MemoryCacheBytes < 1<<20 {
		return fmt.Errorf("MEDIA_MEMORY_CACHE_BYTES must be at least 1MB")
	}
	if m.DiskCacheEnabled && m.DiskCachePath == "" {
		return fmt.Errorf("MEDIA_DISK_CACHE_PATH is required when MEDIA_DISK_CACHE_ENABLED=true")
	}
	if m.EvictionHorizon < c.Deck.Lookahead {
		return fmt.Errorf("MEDIA_EVICTION_HORIZON (%d) must be at least DECK_LOOKAHEAD (%d)", m.EvictionHorizon, c.Deck.Lookahead)
	}
	if m.FetchTimeout <= 0 {
		return fmt.Errorf("MEDIA_FETCH_TIMEOUT must be positive")
	}
	if m.Workers < 1 {
		return fmt.Errorf("MEDIA_WORKERS must be at least 1")
	}
	if m.RatePerSecond <= 0 {
		return fmt.Errorf("MEDIA_RATE_PER_SECOND must be positive")
	}
	if m.MaxItemBytes < 1 {
		return fmt.Errorf("MEDIA_MAX_ITEM_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	if c.Supplier.URL == "" {
		return fmt.Errorf("SUPPLIER_URL is required")
	}
	if err := validateHTTPURL(c.Supplier.URL, "SUPPLIER_URL"); err != nil {
		return err
	}
	if c.Supplier.Timeout <= 0 {
		return fmt.Errorf("SUPPLIER_TIMEOUT must be positive")
	}
	if c.Rating.URL == "" {
		return fmt.Errorf("RATING_URL is required")
	}
	if err := validateHTTPURL(c.Rating.URL, "RATING_URL"); err != nil {
		return err
	}
	if c.Rating.Timeout <= 0 {
		return fmt.Errorf("RATING_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateNATS() error {
	n := c.NATS
	if !n.Enabled {
		return nil
	}
	if !n.EmbeddedServer {
		if err := validateNATSURL(n.URL); err != nil {
			return err
		}
	}
	if n.EmbeddedServer && n.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if n.StreamName == "" {
		return fmt.Errorf("NATS_STREAM_NAME must not be empty")
	}
	if n.RouterRetryCount < 0 {
		return fmt.Errorf("NATS_ROUTER_RETRY_COUNT must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace/debug/info/warn/error/fatal/panic, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that a URL is well-formed with an http(s) scheme
// and a host.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}

// validateNATSURL checks a nats:// connection URL.
func validateNATSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return fmt.Errorf("NATS_URL must use nats or tls scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("NATS_URL is missing a host")
	}
	return nil
}
