// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package models defines the data structures used throughout the Rapid Studio
// feed engine: content items and their personalization tiers, gesture frames,
// swipe decisions and decision batches, deck snapshots, and API envelopes.
//
// Models are plain structs with JSON tags. Validation lives on the types
// themselves (Validate methods) so every ingress path (HTTP, WebSocket,
// outbox recovery) applies identical rules.
package models
