// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
)

// slowRequestThreshold triggers a warn log when exceeded.
const slowRequestThreshold = time.Second

// LatencyMonitor keeps a sliding window of per-endpoint latencies for
// the operator stats endpoint. Prometheus histograms cover alerting;
// this gives exact percentiles over recent traffic without scraping.
type LatencyMonitor struct {
	mu         sync.RWMutex
	samples    []latencySample
	maxSamples int
}

type latencySample struct {
	endpoint   string
	method     string
	duration   time.Duration
	statusCode int
}

// EndpointStats is aggregated latency for one endpoint.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        int64   `json:"p50_ms"`
	P95MS        int64   `json:"p95_ms"`
	P99MS        int64   `json:"p99_ms"`
	MaxMS        int64   `json:"max_ms"`
}

// NewLatencyMonitor creates a monitor holding up to maxSamples recent
// requests.
func NewLatencyMonitor(maxSamples int) *LatencyMonitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &LatencyMonitor{
		samples:    make([]latencySample, 0, maxSamples),
		maxSamples: maxSamples,
	}
}

func (lm *LatencyMonitor) record(s latencySample) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.samples = append(lm.samples, s)
	if len(lm.samples) > lm.maxSamples {
		lm.samples = lm.samples[1:]
	}
}

// Stats aggregates the current window, ordered by request count.
func (lm *LatencyMonitor) Stats() []EndpointStats {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	grouped := make(map[string][]latencySample)
	for _, s := range lm.samples {
		key := s.method + " " + s.endpoint
		grouped[key] = append(grouped[key], s)
	}

	stats := make([]EndpointStats, 0, len(grouped))
	for endpoint, samples := range grouped {
		sorted := make([]int64, len(samples))
		var sum, errs int64
		for i, s := range samples {
			sorted[i] = s.duration.Milliseconds()
			sum += sorted[i]
			if s.statusCode >= http.StatusInternalServerError {
				errs++
			}
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: int64(len(sorted)),
			ErrorCount:   errs,
			AvgMS:        float64(sum) / float64(len(sorted)),
			P50MS:        percentile(sorted, 0.50),
			P95MS:        percentile(sorted, 0.95),
			P99MS:        percentile(sorted, 0.99),
			MaxMS:        sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].RequestCount > stats[j].RequestCount
	})
	return stats
}

// Middleware records latency for each request passing through.
func (lm *LatencyMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		lm.record(latencySample{
			endpoint:   endpoint,
			method:     r.Method,
			duration:   duration,
			statusCode: wrapper.statusCode,
		})

		if duration > slowRequestThreshold {
			logging.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", duration).
				Msg("Slow request detected")
		}
	})
}

// percentile reads the p-th value from a sorted slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
