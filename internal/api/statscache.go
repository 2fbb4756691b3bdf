// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// statsCache memoizes analytics responses for a short TTL. Stats
// queries hit DuckDB; dashboards poll them far faster than the numbers
// change.
type statsCache struct {
	cache *ristretto.Cache[string, cachedResponse]
	ttl   time.Duration
}

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

func newStatsCache(ttl time.Duration) (*statsCache, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cachedResponse]{
		NumCounters: 10_000,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &statsCache{cache: cache, ttl: ttl}, nil
}

func (sc *statsCache) close() {
	sc.cache.Close()
}

// Middleware serves GETs from cache when a fresh copy exists. Only 200s
// are stored; errors always recompute.
func (sc *statsCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if cached, ok := sc.cache.Get(key); ok {
			w.Header().Set("Content-Type", cached.contentType)
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		}

		rec := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK {
			sc.cache.SetWithTTL(key, cachedResponse{
				status:      rec.status,
				contentType: rec.Header().Get("Content-Type"),
				body:        rec.buf.Bytes(),
			}, int64(rec.buf.Len()), sc.ttl)
		}
	})
}

// bufferingWriter tees the response body for caching.
type bufferingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (bw *bufferingWriter) WriteHeader(code int) {
	bw.status = code
	bw.ResponseWriter.WriteHeader(code)
}

func (bw *bufferingWriter) Write(p []byte) (int, error) {
	bw.buf.Write(p)
	return bw.ResponseWriter.Write(p)
}
