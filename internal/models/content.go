// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package models

import (
	"fmt"
	"strings"
	"time"
)

// Tier classifies a content item by how strongly it is personalized to the
// viewing user. Tiers drive prefetch priority: more personalized content is
// fetched ahead of generic filler even when the generic items sit earlier in
// the deck.
//
// Ordering (highest priority first):
//   - TierPersonal: generated for this specific user
//   - TierBrand: generated for a brand/campaign the user follows
//   - TierGeneric: shared filler content, also the fallback for unknown values
type Tier string

const (
	TierPersonal Tier = "personal"
	TierBrand    Tier = "brand"
	TierGeneric  Tier = "generic"
)

// tierRanks maps tiers to their prefetch priority rank. Lower is fetched first.
var tierRanks = map[Tier]int{
	TierPersonal: 0,
	TierBrand:    1,
	TierGeneric:  2,
}

// Rank returns the prefetch priority rank for the tier. Unknown tiers rank
// with TierGeneric.
func (t Tier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return tierRanks[TierGeneric]
}

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// ParseTier normalizes a tier string. Empty and unknown values degrade to
// TierGeneric rather than erroring, matching the supplier's behavior of
// defaulting unlabeled assets to the generic pool.
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return TierGeneric
}

// TierFromBrand derives a tier from a supplier brand identifier. The supplier
// labels assets with a brand_id: "generic" for the shared pool, the user's own
// ID for personalized generations, anything else for brand campaigns.
func TierFromBrand(brandID, userID string) Tier {
	b := strings.ToLower(strings.TrimSpace(brandID))
	switch {
	case b == "" || b == string(TierGeneric):
		return TierGeneric
	case userID != "" && (b == strings.ToLower(userID) || b == "personal:"+strings.ToLower(userID) || b == string(TierPersonal)):
		return TierPersonal
	default:
		return TierBrand
	}
}

// ContentItem is one card in a deck: a generated image plus the metadata the
// engine needs to schedule, fetch, and attribute it. Items are immutable once
// appended to a deck; the same ID is never shown to a session twice.
type ContentItem struct {
	ID       string            `json:"id"`
	MediaURL string            `json:"media_url"`
	Tier     Tier              `json:"tier"`
	JobID    string            `json:"job_id,omitempty"` // generation job that produced the asset
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the invariants required before an item may enter a deck.
func (c ContentItem) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("content item: empty id")
	}
	if strings.TrimSpace(c.MediaURL) == "" {
		return fmt.Errorf("content item %s: empty media_url", c.ID)
	}
	if !c.Tier.Valid() {
		return fmt.Errorf("content item %s: unknown tier %q", c.ID, c.Tier)
	}
	return nil
}
