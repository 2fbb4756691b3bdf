// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// DeliveredBatch is one rating batch the fake consumer accepted.
type DeliveredBatch struct {
	BatchID        string
	UserID         string
	Ratings        int
	IdempotencyKey string
}

// FakeConsumer is an in-process stand-in for the preference consumer.
// It captures delivered batches and can be told to reject, for outbox
// retry and parking tests.
type FakeConsumer struct {
	server *httptest.Server

	mu        sync.Mutex
	delivered []DeliveredBatch
	seen      map[string]int // idempotency key -> delivery count
	status    int            // 0 means accept
}

// NewFakeConsumer starts the fake; it stops with the test.
func NewFakeConsumer(t *testing.T) *FakeConsumer {
	t.Helper()
	f := &FakeConsumer{seen: make(map[string]int)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL for rating.Config.
func (f *FakeConsumer) URL() string { return f.server.URL }

// RespondWith forces the given status on future deliveries. Pass 0 to
// accept again.
func (f *FakeConsumer) RespondWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Delivered returns the accepted batches in arrival order.
func (f *FakeConsumer) Delivered() []DeliveredBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeliveredBatch(nil), f.delivered...)
}

// DeliveryCount reports how many times a batch ID was posted,
// accepted or not. Redelivery after an ack would show up here.
func (f *FakeConsumer) DeliveryCount(batchID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[batchID]
}

func (f *FakeConsumer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/ratings" {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	var batch struct {
		UserID  string `json:"user_id"`
		BatchID string `json:"batch_id"`
		Ratings []struct {
			ImageID string `json:"image_id"`
			Score   int    `json:"score"`
		} `json:"ratings"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		http.Error(w, "bad batch payload", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[batch.BatchID]++

	if f.status != 0 {
		http.Error(w, "rejected by test configuration", f.status)
		return
	}

	f.delivered = append(f.delivered, DeliveredBatch{
		BatchID:        batch.BatchID,
		UserID:         batch.UserID,
		Ratings:        len(batch.Ratings),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	w.WriteHeader(http.StatusOK)
}
