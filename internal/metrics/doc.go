// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package metrics defines the Prometheus instrumentation for the swipe
// engine: decision throughput, batch flush behaviour, outbox delivery,
// prefetch and media cache efficiency, supplier upstream health, and the
// HTTP/WebSocket serving layer.
//
// All collectors are registered against the default registry at package
// load via promauto, and are exposed by the API server on /metrics.
// Recording helpers are provided for multi-label collectors so call
// sites do not repeat label ordering.
package metrics
