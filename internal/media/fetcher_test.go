// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

func testItem(id, url string) models.ContentItem {
	return models.ContentItem{ID: id, MediaURL: url, Tier: models.TierGeneric}
}

func TestFetcherGetFromOriginThenCache(t *testing.T) {
	var hits atomic.Int64
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer origin.Close()

	c := newTestCache(t, false, 0)
	f := NewFetcher(c)
	ctx := context.Background()
	item := testItem("item-1", origin.URL+"/assets/generic/job/tile.png")

	data, source, err := f.Get(ctx, item)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if source != SourceOrigin {
		t.Errorf("source = %q, want origin", source)
	}
	if !bytes.Equal(data, []byte("png-bytes")) {
		t.Errorf("data = %q", data)
	}

	c.Wait()
	data, source, err = f.Get(ctx, item)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if source != SourceCache {
		t.Errorf("second source = %q, want cache", source)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("origin hits = %d, want 1", got)
	}
}

func TestFetcherGetUnavailableOrigin(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer origin.Close()

	c := newTestCache(t, false, 0)
	f := NewFetcher(c)

	_, _, err := f.Get(context.Background(), testItem("item-1", origin.URL))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get() error = %v, want ErrUnavailable", err)
	}
}

func TestFetcherPrefetchPopulatesCache(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("prefetched"))
	}))
	defer origin.Close()

	c := newTestCache(t, false, 0)
	f := NewFetcher(c)

	n, err := f.Prefetch(context.Background(), testItem("item-1", origin.URL))
	if err != nil {
		t.Fatalf("Prefetch() error = %v", err)
	}
	if n != len("prefetched") {
		t.Errorf("Prefetch() bytes = %d, want %d", n, len("prefetched"))
	}

	c.Wait()
	if !c.Cached("item-1") {
		t.Error("Cached() = false after prefetch")
	}

	// Second prefetch is a no-op cache hit.
	n, err = f.Prefetch(context.Background(), testItem("item-1", origin.URL))
	if err != nil {
		t.Fatalf("second Prefetch() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Prefetch() bytes = %d, want 0", n)
	}
}

func TestFetcherRejectsOversizedBody(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, (1<<16)+10))
	}))
	defer origin.Close()

	c := newTestCache(t, false, 0)
	f := NewFetcher(c)

	if _, err := f.Prefetch(context.Background(), testItem("big", origin.URL)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Prefetch(oversized) error = %v, want ErrTooLarge", err)
	}
}
