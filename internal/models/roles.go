// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package models

// Roles used by session tokens and the authorization policy.
//
// A device token is minted per session and scopes the caller to that
// session's deck and gesture endpoints. The admin role unlocks analytics
// and operational endpoints.
const (
	RoleDevice = "device"
	RoleAdmin  = "admin"
)
