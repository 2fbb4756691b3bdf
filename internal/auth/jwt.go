// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package auth issues and validates session tokens. The model is
// deliberately small: devices get an HS256 session JWT minted at
// session create, operators authenticate with the admin key. There is
// no user login flow; user identity arrives from the app's own account
// system as an opaque user ID.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

// ErrInvalidToken covers every validation failure: expired, tampered,
// wrong algorithm, malformed.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried in a session token.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager mints and validates session tokens with HMAC-SHA256.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager builds the manager from security config. The secret
// must be at least 32 bytes in token mode.
func NewJWTManager(cfg config.SecurityConfig) (*JWTManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(cfg.JWTSecret))
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(cfg.JWTSecret), ttl: ttl}, nil
}

// GenerateSessionToken mints a device token bound to one session.
func (m *JWTManager) GenerateSessionToken(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		Role:      models.RoleDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, rejecting any signing
// algorithm other than HMAC.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
