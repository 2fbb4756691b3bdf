// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package rating

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

func sampleBatch() models.DecisionBatch {
	return models.DecisionBatch{
		BatchID:   uuid.New(),
		SessionID: "s1",
		UserID:    "user-7",
		Trigger:   models.TriggerSize,
		SealedAt:  time.Now(),
		Decisions: []models.Decision{
			{
				ItemID:        "img-1",
				SessionID:     "s1",
				UserID:        "user-7",
				Direction:     models.DirectionAccept,
				Tier:          models.TierPersonal,
				SwipeVelocity: 2400,
				Confidence:    1.0,
				Hesitation:    1200 * time.Millisecond,
				DecidedAt:     time.Now(),
			},
			{
				ItemID:        "img-2",
				SessionID:     "s1",
				UserID:        "user-7",
				Direction:     models.DirectionReject,
				Tier:          models.TierGeneric,
				SwipeVelocity: -900,
				Confidence:    0.45,
				Hesitation:    300 * time.Millisecond,
				DecidedAt:     time.Now(),
			},
		},
	}
}

func TestDeliverPostsWireFormat(t *testing.T) {
	batch := sampleBatch()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ratings" {
			t.Errorf("%s %s, want POST /ratings", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != batch.BatchID.String() {
			t.Errorf("Idempotency-Key = %q, want batch id", got)
		}

		var wire struct {
			UserID  string `json:"user_id"`
			BatchID string `json:"batch_id"`
			Ratings []struct {
				ImageID      string  `json:"image_id"`
				Score        int     `json:"score"`
				Confidence   float64 `json:"confidence"`
				HesitationMS int64   `json:"hesitation_ms"`
			} `json:"ratings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if wire.UserID != "user-7" || wire.BatchID != batch.BatchID.String() {
			t.Errorf("frame = %+v", wire)
		}
		if len(wire.Ratings) != 2 {
			t.Fatalf("ratings = %d, want 2", len(wire.Ratings))
		}
		if wire.Ratings[0].Score != 1 || wire.Ratings[1].Score != -1 {
			t.Errorf("scores = %d, %d, want +1, -1", wire.Ratings[0].Score, wire.Ratings[1].Score)
		}
		if wire.Ratings[0].HesitationMS != 1200 {
			t.Errorf("hesitation_ms = %d, want 1200", wire.Ratings[0].HesitationMS)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	if err := c.Deliver(context.Background(), batch); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
}

func TestDeliverErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"server error retryable", http.StatusServiceUnavailable, false},
		{"throttling retryable", http.StatusTooManyRequests, false},
		{"bad payload permanent", http.StatusUnprocessableEntity, true},
		{"unauthorized permanent", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(Config{URL: srv.URL})
			err := c.Deliver(context.Background(), sampleBatch())
			if err == nil {
				t.Fatal("Deliver() error = nil, want status error")
			}
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error %T, want *StatusError", err)
			}
			if se.Permanent() != tt.permanent {
				t.Errorf("Permanent() = %v, want %v", se.Permanent(), tt.permanent)
			}
		})
	}
}

func TestDeliverBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	var err error
	for i := 0; i < 10; i++ {
		err = c.Deliver(context.Background(), sampleBatch())
		if err == nil {
			t.Fatal("Deliver() error = nil, want failure")
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			break
		}
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("breaker never opened, last error = %v", err)
	}
	if requests >= 10 {
		t.Errorf("requests = %d, want fast-fail once open", requests)
	}

	// Open-breaker failures must stay retryable so the outbox backs
	// off instead of parking the batch.
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("open breaker classified as status error %v", se)
	}
}

func TestDeliverTransportErrorIsRetryable(t *testing.T) {
	c := New(Config{URL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond})
	err := c.Deliver(context.Background(), sampleBatch())
	if err == nil {
		t.Fatal("Deliver() error = nil, want transport error")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("transport failure classified as status error %v", se)
	}
}
