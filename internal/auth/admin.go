// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrAdminDisabled is returned when no admin key was configured.
var ErrAdminDisabled = errors.New("admin access not configured")

// AdminVerifier checks presented admin keys against a bcrypt hash. The
// plaintext key is hashed at startup and discarded, so neither memory
// dumps nor logs expose it afterwards.
type AdminVerifier struct {
	hash []byte
}

// NewAdminVerifier hashes the configured key. An empty key disables
// admin access entirely.
func NewAdminVerifier(adminKey string) (*AdminVerifier, error) {
	if adminKey == "" {
		return &AdminVerifier{}, nil
	}
	if len(adminKey) < 16 {
		return nil, fmt.Errorf("admin key must be at least 16 characters, got %d", len(adminKey))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin key: %w", err)
	}
	return &AdminVerifier{hash: hash}, nil
}

// Enabled reports whether an admin key is configured.
func (v *AdminVerifier) Enabled() bool {
	return len(v.hash) > 0
}

// Verify checks a presented key. bcrypt comparison is constant-time
// per attempt.
func (v *AdminVerifier) Verify(key string) error {
	if !v.Enabled() {
		return ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidToken
	}
	return nil
}
