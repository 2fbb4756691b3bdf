// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Source tells the caller where bytes came from.
const (
	SourceCache  = "cache"
	SourceOrigin = "origin"
)

// ErrUnavailable is returned when the bytes are not cached and origin
// could not serve them. The API layer maps it to the placeholder
// fallback.
var ErrUnavailable = errors.New("media unavailable")

// Fetcher pulls media bytes from origin under a shared request budget.
// Prefetch workers and on-demand loads go through the same instance, so
// one misbehaving deck cannot starve origin for everyone else.
type Fetcher struct {
	cache   *Cache
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewFetcher builds a fetcher over the given cache, using its config for
// the timeout and rate budget.
func NewFetcher(c *Cache) *Fetcher {
	cfg := c.cfg
	name := "media-origin"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("MEDIA: Breaker state change")
			metrics.RecordBreakerState(name, to.String())
		},
	})

	return &Fetcher{
		cache:   c,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		breaker: breaker,
	}
}

// Cache returns the underlying byte store.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Prefetch ensures the item's bytes are cached, fetching from origin if
// needed. The returned byte count is 0 on a cache hit.
func (f *Fetcher) Prefetch(ctx context.Context, item models.ContentItem) (int, error) {
	if f.cache.Cached(item.ID) {
		return 0, nil
	}
	data, err := f.fetchOrigin(ctx, item)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Get returns the item's bytes and their source. Cache misses fall back
// to a synchronous origin fetch; if that also fails the caller shows the
// placeholder.
func (f *Fetcher) Get(ctx context.Context, item models.ContentItem) ([]byte, string, error) {
	if data, ok := f.cache.Get(item.ID); ok {
		return data, SourceCache, nil
	}
	data, err := f.fetchOrigin(ctx, item)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrUnavailable, item.ID, err)
	}
	return data, SourceOrigin, nil
}

// fetchOrigin performs the rate-limited, breaker-guarded GET and caches
// the result.
func (f *Fetcher) fetchOrigin(ctx context.Context, item models.ContentItem) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	data, err := f.breaker.Execute(func() ([]byte, error) {
		return f.doGet(ctx, item.MediaURL)
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordPrefetch("error", elapsed, 0)
		return nil, err
	}
	metrics.RecordPrefetch("success", elapsed, len(data))

	if err := f.cache.Put(item.ID, data); err != nil {
		// Serve the bytes anyway; only caching failed.
		logging.Warn().Err(err).Str("item_id", item.ID).Msg("MEDIA: Cache store failed")
	}
	return data, nil
}

func (f *Fetcher) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("origin status %d", resp.StatusCode)
	}

	// +1 so a body exactly at the cap is distinguishable from one over it.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cache.cfg.MaxItemBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.cache.cfg.MaxItemBytes {
		return nil, fmt.Errorf("%w: body over %d bytes", ErrTooLarge, f.cache.cfg.MaxItemBytes)
	}
	return data, nil
}
