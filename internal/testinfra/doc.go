// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package testinfra provides shared test infrastructure: in-process
// fakes for the engine's two external peers (the content supplier and
// the preference consumer) and, behind the integration build tag,
// testcontainers helpers for running against a real NATS server.
//
// The fakes speak the same wire formats as the real services:
//
//	fake := testinfra.NewFakeSupplier(t)
//	client := supplier.New(supplier.Config{URL: fake.URL()})
//
// Container-backed tests run with `-tags integration` and skip
// automatically when Docker is unavailable.
package testinfra
