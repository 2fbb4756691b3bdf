// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision pipeline metrics track committed swipes from gesture release
// through batch seal and outbox delivery.
var (
	// DecisionsTotal counts committed swipe decisions by direction and
	// content tier.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_decisions_total",
			Help: "Total committed swipe decisions",
		},
		[]string{"direction", "tier"},
	)

	// SwipeHesitationSeconds observes the time from first card display
	// to gesture release. Buckets favour the sub-ten-second range where
	// nearly all real swipes land.
	SwipeHesitationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_swipe_hesitation_seconds",
			Help:    "Time from card display to committed release",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	// SwipeConfidence observes the normalized release velocity in [0,1].
	SwipeConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_swipe_confidence",
			Help:    "Normalized swipe velocity at release (0-1)",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	// GestureReleasesTotal counts gesture releases by outcome
	// (committed, snapped_back).
	GestureReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_gesture_releases_total",
			Help: "Gesture releases by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveSessions tracks the number of live swipe sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_active_sessions",
			Help: "Number of active swipe sessions",
		},
	)

	// DeckRemaining observes undecided cards left in a deck, sampled at
	// each decision commit. A histogram rather than a per-session gauge
	// keeps cardinality flat.
	DeckRemaining = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_deck_remaining",
			Help:    "Undecided cards remaining at decision time",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 200, 400},
		},
	)

	// DeckAppendsTotal counts items appended to decks.
	DeckAppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rapid_deck_appends_total",
			Help: "Items appended to session decks",
		},
	)

	// DeckDuplicatesDroppedTotal counts appended items rejected because
	// the deck already holds the same item ID.
	DeckDuplicatesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rapid_deck_duplicates_dropped_total",
			Help: "Duplicate item IDs rejected on deck append",
		},
	)

	// RefillSignalsTotal counts low-water refill requests sent to the
	// supplier, by result (requested, satisfied, failed).
	RefillSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_refill_signals_total",
			Help: "Deck refill signals by result",
		},
		[]string{"result"},
	)
)

// Batch and outbox metrics cover the decision batcher and the durable
// delivery pipeline behind it.
var (
	// BatchFlushesTotal counts sealed batches by trigger
	// (size, interval, shutdown).
	BatchFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_batch_flushes_total",
			Help: "Sealed decision batches by flush trigger",
		},
		[]string{"trigger"},
	)

	// BatchSize observes decisions per sealed batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_batch_size",
			Help:    "Decisions per sealed batch",
			Buckets: []float64{1, 2, 5, 8, 10, 15, 20},
		},
	)

	// OutboxPendingBatches tracks sealed batches awaiting delivery.
	OutboxPendingBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_outbox_pending_batches",
			Help: "Sealed batches awaiting delivery",
		},
	)

	// OutboxPendingDecisions tracks open decisions not yet sealed into
	// a batch.
	OutboxPendingDecisions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_outbox_pending_decisions",
			Help: "Decisions persisted but not yet sealed",
		},
	)

	// OutboxParkedBatches tracks batches that exhausted their retry
	// budget and require operator replay.
	OutboxParkedBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_outbox_parked_batches",
			Help: "Batches parked after exhausting retries",
		},
	)

	// OutboxDeliveryAttemptsTotal counts delivery attempts by result
	// (success, retryable, rejected, parked).
	OutboxDeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_outbox_delivery_attempts_total",
			Help: "Outbox delivery attempts by result",
		},
		[]string{"result"},
	)

	// OutboxDeliveryDuration observes wall time of delivery attempts.
	OutboxDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_outbox_delivery_duration_seconds",
			Help:    "Duration of outbox delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Prefetch and media cache metrics cover the lookahead pipeline that
// keeps upcoming card media warm.
var (
	// PrefetchFetchesTotal counts prefetch attempts by result
	// (success, failure, skipped).
	PrefetchFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_prefetch_fetches_total",
			Help: "Prefetch attempts by result",
		},
		[]string{"result"},
	)

	// PrefetchQueueDepth tracks entries waiting in the prefetch
	// priority queue.
	PrefetchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_prefetch_queue_depth",
			Help: "Entries waiting in the prefetch queue",
		},
	)

	// PrefetchFetchDuration observes media fetch latency.
	PrefetchFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_prefetch_fetch_duration_seconds",
			Help:    "Media fetch duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// PrefetchBytesTotal counts media bytes fetched from the supplier.
	PrefetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rapid_prefetch_bytes_total",
			Help: "Media bytes fetched by the prefetcher",
		},
	)

	// MediaCacheRequestsTotal counts cache lookups by layer
	// (memory, disk) and result (hit, miss).
	MediaCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_media_cache_requests_total",
			Help: "Media cache lookups by layer and result",
		},
		[]string{"layer", "result"},
	)

	// MediaCacheEvictionsTotal counts evictions by layer and cause
	// (horizon, cost, ttl).
	MediaCacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_media_cache_evictions_total",
			Help: "Media cache evictions by layer and cause",
		},
		[]string{"layer", "cause"},
	)

	// MediaCacheBytes tracks resident bytes in the memory cache layer.
	MediaCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_media_cache_bytes",
			Help: "Bytes resident in the in-memory media cache",
		},
	)
)

// Upstream metrics cover the image supplier and rating collector
// HTTP clients.
var (
	// SupplierRequestsTotal counts upstream requests by operation
	// (fetch_page, submit_job, fetch_media, deliver_ratings) and result.
	SupplierRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_supplier_requests_total",
			Help: "Upstream requests by operation and result",
		},
		[]string{"operation", "result"},
	)

	// SupplierRequestDuration observes upstream request latency.
	SupplierRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rapid_supplier_request_duration_seconds",
			Help:    "Upstream request duration by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// CircuitBreakerState reports breaker state by upstream name
	// (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rapid_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTripsTotal counts open transitions by upstream name.
	CircuitBreakerTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_circuit_breaker_trips_total",
			Help: "Circuit breaker open transitions",
		},
		[]string{"name"},
	)
)

// Event bus metrics cover watermill publish/consume activity.
var (
	// EventsPublishedTotal counts events published by topic.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_events_published_total",
			Help: "Events published by topic",
		},
		[]string{"topic"},
	)

	// EventsConsumedTotal counts events consumed by topic and result
	// (ok, error).
	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_events_consumed_total",
			Help: "Events consumed by topic and result",
		},
		[]string{"topic", "result"},
	)

	// EventPublishFailuresTotal counts failed publishes by topic.
	EventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_event_publish_failures_total",
			Help: "Failed event publishes by topic",
		},
		[]string{"topic"},
	)
)

// Analytics metrics cover the DuckDB append pipeline.
var (
	// AnalyticsAppendDuration observes DuckDB batch append latency.
	AnalyticsAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_analytics_append_duration_seconds",
			Help:    "DuckDB batch append duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AnalyticsAppendRows observes rows per DuckDB append batch.
	AnalyticsAppendRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rapid_analytics_append_rows",
			Help:    "Rows per DuckDB append batch",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
	)

	// AnalyticsAppendErrorsTotal counts failed DuckDB appends.
	AnalyticsAppendErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rapid_analytics_append_errors_total",
			Help: "Failed DuckDB append batches",
		},
	)

	// DBQueryDuration observes analytics query latency by operation
	// and table.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rapid_db_query_duration_seconds",
			Help:    "Analytics query duration by operation and table",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// DBQueryErrorsTotal counts analytics query failures.
	DBQueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_db_query_errors_total",
			Help: "Analytics query errors by operation and table",
		},
		[]string{"operation", "table", "error"},
	)
)

// Serving layer metrics cover the REST API and the WebSocket hub.
var (
	// APIRequestsTotal counts HTTP requests by method, endpoint, and
	// status code.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_api_requests_total",
			Help: "HTTP requests by method, endpoint, and status",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// APIRequestDuration observes HTTP request latency by method and
	// endpoint.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rapid_api_request_duration_seconds",
			Help:    "HTTP request duration by method and endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// APIActiveRequests tracks in-flight HTTP requests.
	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_api_active_requests",
			Help: "In-flight HTTP requests",
		},
	)

	// RateLimitHitsTotal counts requests rejected by rate limiting.
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_rate_limit_hits_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)

	// WSConnections tracks connected WebSocket clients.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rapid_ws_connections",
			Help: "Connected WebSocket clients",
		},
	)

	// WSMessagesTotal counts WebSocket messages by direction
	// (inbound, outbound) and type.
	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_ws_messages_total",
			Help: "WebSocket messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	// WSErrorsTotal counts WebSocket failures by kind
	// (read, write, slow_client, bad_frame).
	WSErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rapid_ws_errors_total",
			Help: "WebSocket errors by kind",
		},
		[]string{"kind"},
	)
)

// Application metadata.
var (
	// AppInfo carries build metadata as constant labels set at startup.
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rapid_app_info",
			Help: "Application build information",
		},
		[]string{"version", "go_version"},
	)

	// AppUptimeSeconds reports seconds since process start.
	AppUptimeSeconds = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "rapid_app_uptime_seconds",
			Help: "Seconds since process start",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)

	startTime = time.Now()
)

// SetAppInfo records the build version. Call once at startup.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// RecordDecision updates the decision counters and the confidence and
// hesitation histograms for one committed swipe.
func RecordDecision(direction, tier string, confidence float64, hesitation time.Duration) {
	DecisionsTotal.WithLabelValues(direction, tier).Inc()
	SwipeConfidence.Observe(confidence)
	SwipeHesitationSeconds.Observe(hesitation.Seconds())
}

// RecordBatchFlush records one sealed batch.
func RecordBatchFlush(trigger string, size int) {
	BatchFlushesTotal.WithLabelValues(trigger).Inc()
	BatchSize.Observe(float64(size))
}

// RecordDeliveryAttempt records one outbox delivery attempt.
func RecordDeliveryAttempt(result string, duration time.Duration) {
	OutboxDeliveryAttemptsTotal.WithLabelValues(result).Inc()
	OutboxDeliveryDuration.Observe(duration.Seconds())
}

// RecordPrefetch records one prefetch attempt. Bytes is ignored unless
// the fetch succeeded.
func RecordPrefetch(result string, duration time.Duration, bytes int) {
	PrefetchFetchesTotal.WithLabelValues(result).Inc()
	PrefetchFetchDuration.Observe(duration.Seconds())
	if result == "success" && bytes > 0 {
		PrefetchBytesTotal.Add(float64(bytes))
	}
}

// RecordMediaCacheRequest records one cache lookup.
func RecordMediaCacheRequest(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	MediaCacheRequestsTotal.WithLabelValues(layer, result).Inc()
}

// RecordSupplierRequest records one upstream request.
func RecordSupplierRequest(operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	SupplierRequestsTotal.WithLabelValues(operation, result).Inc()
	SupplierRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDBQuery records one analytics query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errType := err.Error()
		if len(errType) > 50 {
			errType = errType[:50]
		}
		DBQueryErrorsTotal.WithLabelValues(operation, table, errType).Inc()
	}
}

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEventPublished records one event publish attempt.
func RecordEventPublished(topic string, err error) {
	if err != nil {
		EventPublishFailuresTotal.WithLabelValues(topic).Inc()
		return
	}
	EventsPublishedTotal.WithLabelValues(topic).Inc()
}

// RecordBreakerState maps a gobreaker state name onto the state gauge.
func RecordBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
		CircuitBreakerTripsTotal.WithLabelValues(name).Inc()
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}
