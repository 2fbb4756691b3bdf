// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package outbox

import (
	"fmt"
	"time"
)

// Config tunes the outbox store and its delivery loop.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without files. Testing only: an in-memory
	// outbox defeats the crash-safety the outbox exists for.
	InMemory bool

	// SyncWrites forces fsync on every decision append. Slower, but a
	// power loss cannot take a committed swipe with it.
	SyncWrites bool

	// RetryInitial is the delay before the first redelivery attempt.
	RetryInitial time.Duration

	// RetryMax caps the exponential backoff.
	RetryMax time.Duration

	// RetryMultiplier grows the delay between attempts.
	RetryMultiplier float64

	// MaxAttempts parks a batch after this many failed deliveries.
	MaxAttempts int

	// PollInterval is how often the deliverer checks for due batches.
	PollInterval time.Duration

	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration

	// CompactionInterval is how often delivered batches are pruned.
	CompactionInterval time.Duration

	// DeliveredTTL keeps confirmed batches around for inspection before
	// compaction removes them.
	DeliveredTTL time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Path:               "data/outbox",
		SyncWrites:         true,
		RetryInitial:       5 * time.Second,
		RetryMax:           10 * time.Minute,
		RetryMultiplier:    2.0,
		MaxAttempts:        100,
		PollInterval:       time.Second,
		DeliveryTimeout:    30 * time.Second,
		CompactionInterval: time.Hour,
		DeliveredTTL:       24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = d.RetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = d.RetryMax
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = d.RetryMultiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = d.DeliveryTimeout
	}
	if c.CompactionInterval <= 0 {
		c.CompactionInterval = d.CompactionInterval
	}
	if c.DeliveredTTL <= 0 {
		c.DeliveredTTL = d.DeliveredTTL
	}
	return c
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.Path == "" && !c.InMemory {
		return fmt.Errorf("outbox: path required unless in_memory")
	}
	if c.RetryMax < c.RetryInitial {
		return fmt.Errorf("outbox: retry_max %s below retry_initial %s", c.RetryMax, c.RetryInitial)
	}
	return nil
}

// backoff returns the delay before the next attempt after n failures
// (n >= 1), capped at RetryMax.
func (c Config) backoff(n int) time.Duration {
	d := c.RetryInitial
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * c.RetryMultiplier)
		if d >= c.RetryMax {
			return c.RetryMax
		}
	}
	if d > c.RetryMax {
		return c.RetryMax
	}
	return d
}
