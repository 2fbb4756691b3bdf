// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a default config made valid by filling required fields.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("s", 32)
	cfg.Supplier.URL = "http://supplier.local:8000"
	cfg.Rating.URL = "http://ratings.local:8000"
	return cfg
}

func TestDefaultConfigIsValidWithRequiredFields(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with required fields should validate: %v", err)
	}
}

func TestDefaultThresholdInsideBand(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Deck.ThresholdFraction < 0.25 || cfg.Deck.ThresholdFraction > 0.30 {
		t.Errorf("default threshold fraction %f outside the 0.25-0.30 band", cfg.Deck.ThresholdFraction)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }, "ENVIRONMENT"},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"auth none in production", func(c *Config) {
			c.Security.AuthMode = "none"
			c.Server.Environment = "production"
		}, "AUTH_MODE"},
		{"threshold too low", func(c *Config) { c.Deck.ThresholdFraction = 0.01 }, "DECK_THRESHOLD_FRACTION"},
		{"threshold too high", func(c *Config) { c.Deck.ThresholdFraction = 0.95 }, "DECK_THRESHOLD_FRACTION"},
		{"rotation out of range", func(c *Config) { c.Deck.MaxRotationDeg = 180 }, "DECK_MAX_ROTATION_DEG"},
		{"damping above one", func(c *Config) { c.Deck.VerticalDamping = 1.5 }, "DECK_VERTICAL_DAMPING"},
		{"zero velocity norm", func(c *Config) { c.Deck.VelocityNorm = 0 }, "DECK_VELOCITY_NORM"},
		{"zero lookahead", func(c *Config) { c.Deck.Lookahead = 0 }, "DECK_LOOKAHEAD"},
		{"low water above lookahead", func(c *Config) {
			c.Deck.Lookahead = 5
			c.Deck.LowWaterMark = 6
			c.Media.EvictionHorizon = 20
		}, "DECK_LOW_WATER_MARK"},
		{"zero batch size", func(c *Config) { c.Batch.Size = 0 }, "BATCH_SIZE"},
		{"zero flush interval", func(c *Config) { c.Batch.FlushInterval = 0 }, "BATCH_FLUSH_INTERVAL"},
		{"outbox path missing", func(c *Config) { c.Outbox.Path = "" }, "OUTBOX_PATH"},
		{"retry max below initial", func(c *Config) {
			c.Outbox.RetryInitial = time.Minute
			c.Outbox.RetryMax = time.Second
		}, "OUTBOX_RETRY_MAX"},
		{"multiplier below one", func(c *Config) { c.Outbox.RetryMultiplier = 0.5 }, "OUTBOX_RETRY_MULTIPLIER"},
		{"eviction horizon below lookahead", func(c *Config) { c.Media.EvictionHorizon = 10 }, "MEDIA_EVICTION_HORIZON"},
		{"zero media workers", func(c *Config) { c.Media.Workers = 0 }, "MEDIA_WORKERS"},
		{"missing supplier url", func(c *Config) { c.Supplier.URL = "" }, "SUPPLIER_URL"},
		{"bad supplier scheme", func(c *Config) { c.Supplier.URL = "ftp://supplier" }, "SUPPLIER_URL"},
		{"missing rating url", func(c *Config) { c.Rating.URL = "" }, "RATING_URL"},
		{"nats external without host", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = "nats://"
		}, "NATS_URL"},
		{"nats embedded without store dir", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = true
			c.NATS.StoreDir = ""
		}, "NATS_STORE_DIR"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"DECK_LOOKAHEAD", "deck.lookahead"},
		{"DECK_THRESHOLD_FRACTION", "deck.threshold_fraction"},
		{"BATCH_SIZE", "batch.size"},
		{"OUTBOX_PATH", "outbox.path"},
		{"SUPPLIER_URL", "supplier.url"},
		{"RATING_URL", "rating.url"},
		{"NATS_ENABLED", "nats.enabled"},
		{"DUCKDB_PATH", "analytics.path"},
		{"LOG_LEVEL", "logging.level"},
		{"RANDOM_NOISE_VAR", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", strings.Repeat("k", 40))
	t.Setenv("SUPPLIER_URL", "http://supplier.test")
	t.Setenv("RATING_URL", "http://ratings.test")
	t.Setenv("DECK_LOOKAHEAD", "30")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("MEDIA_EVICTION_HORIZON", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Deck.Lookahead != 30 {
		t.Errorf("lookahead = %d, want 30", cfg.Deck.Lookahead)
	}
	if cfg.Batch.Size != 5 {
		t.Errorf("batch size = %d, want 5", cfg.Batch.Size)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Supplier.URL != "http://supplier.test" {
		t.Errorf("supplier url = %q", cfg.Supplier.URL)
	}
	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("cors origins = %v", cfg.API.CORSOrigins)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8484}
	if got := s.Addr(); got != "127.0.0.1:8484" {
		t.Errorf("Addr() = %q", got)
	}
}
