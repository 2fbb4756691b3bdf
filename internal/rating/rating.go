// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package rating delivers sealed decision batches to the preference
// consumer. The client classifies failures for the outbox: transport
// errors, 429 and 5xx are retryable; any other 4xx means the payload
// itself was rejected and retrying cannot help, so the batch parks.
// The batch ID rides along as the consumer's idempotency key.
package rating

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// Config points the client at the preference consumer.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// StatusError is a non-2xx response from the consumer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rating consumer status %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying is pointless. 429 is throttling and
// 5xx is the consumer's problem; everything else in 4xx is ours.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// wireBatch is the consumer's expected payload.
type wireBatch struct {
	UserID  string       `json:"user_id"`
	BatchID string       `json:"batch_id"`
	Ratings []wireRating `json:"ratings"`
}

type wireRating struct {
	ImageID       string    `json:"image_id"`
	Score         int       `json:"score"` // +1 accept, -1 reject
	Confidence    float64   `json:"confidence"`
	SwipeVelocity float64   `json:"swipe_velocity"`
	HesitationMS  int64     `json:"hesitation_ms"`
	DecidedAt     time.Time `json:"decided_at"`
}

// Client posts decision batches. Safe for concurrent use, though the
// outbox deliverer keeps one batch in flight at a time.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New creates a rating consumer client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	name := "rating"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("RATING: Breaker state change")
			metrics.RecordBreakerState(name, to.String())
		},
	})

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// Deliver posts one batch. A nil return acknowledges delivery; the
// outbox inspects the error's permanence otherwise.
func (c *Client) Deliver(ctx context.Context, batch models.DecisionBatch) error {
	wire := wireBatch{
		UserID:  batch.UserID,
		BatchID: batch.BatchID.String(),
		Ratings: make([]wireRating, len(batch.Decisions)),
	}
	for i, d := range batch.Decisions {
		wire.Ratings[i] = wireRating{
			ImageID:       d.ItemID,
			Score:         d.Direction.Score(),
			Confidence:    d.Confidence,
			SwipeVelocity: d.SwipeVelocity,
			HesitationMS:  d.Hesitation.Milliseconds(),
			DecidedAt:     d.DecidedAt,
		}
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal rating batch: %w", err)
	}

	// While the breaker is open Deliver fails fast with ErrOpenState,
	// which is not a StatusError, so the outbox backs off and retries
	// instead of parking the batch.
	_, err = c.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/ratings", bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", wire.BatchID)
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			metrics.RecordSupplierRequest("deliver_ratings", time.Since(start), err)
			return struct{}{}, fmt.Errorf("post ratings: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{Code: resp.StatusCode, Body: string(body)}
			metrics.RecordSupplierRequest("deliver_ratings", time.Since(start), statusErr)
			return struct{}{}, statusErr
		}
		metrics.RecordSupplierRequest("deliver_ratings", time.Since(start), nil)
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	logging.Debug().
		Str("batch_id", wire.BatchID).
		Str("user_id", wire.UserID).
		Int("ratings", len(wire.Ratings)).
		Msg("RATING: Batch delivered")
	return nil
}
