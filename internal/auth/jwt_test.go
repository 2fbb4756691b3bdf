// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestJWTManager(t *testing.T) *JWTManager {
	t.Helper()
	mgr, err := NewJWTManager(config.SecurityConfig{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return mgr
}

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	_, err := NewJWTManager(config.SecurityConfig{JWTSecret: "too-short"})
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestGenerateAndValidateSessionToken(t *testing.T) {
	mgr := newTestJWTManager(t)

	token, err := mgr.GenerateSessionToken("user-1", "session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-1")
	}
	if claims.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", claims.SessionID, "session-1")
	}
	if claims.Role != models.RoleDevice {
		t.Errorf("Role = %q, want %q", claims.Role, models.RoleDevice)
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	mgr := newTestJWTManager(t)

	token, err := mgr.GenerateSessionToken("user-1", "session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token format: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	if _, err := mgr.ValidateToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken(tampered) = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenRejectsWrongSigningMethod(t *testing.T) {
	mgr := newTestJWTManager(t)

	// alg=none tokens must never pass the HMAC keyfunc.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID: "user-1",
		Role:   models.RoleAdmin,
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := mgr.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken(alg=none) = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	mgr := &JWTManager{secret: []byte(testSecret), ttl: -time.Minute}

	token, err := mgr.GenerateSessionToken("user-1", "session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	if _, err := mgr.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken(expired) = %v, want ErrInvalidToken", err)
	}
}

func TestAdminVerifier(t *testing.T) {
	v, err := NewAdminVerifier("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewAdminVerifier: %v", err)
	}
	if !v.Enabled() {
		t.Fatal("verifier should be enabled")
	}
	if err := v.Verify("correct horse battery staple"); err != nil {
		t.Errorf("Verify(correct) = %v, want nil", err)
	}
	if err := v.Verify("wrong key entirely here"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(wrong) = %v, want ErrInvalidToken", err)
	}
}

func TestAdminVerifierDisabled(t *testing.T) {
	v, err := NewAdminVerifier("")
	if err != nil {
		t.Fatalf("NewAdminVerifier: %v", err)
	}
	if v.Enabled() {
		t.Fatal("verifier should be disabled")
	}
	if err := v.Verify("anything at all really"); !errors.Is(err, ErrAdminDisabled) {
		t.Errorf("Verify = %v, want ErrAdminDisabled", err)
	}
}

func TestAdminVerifierRejectsShortKey(t *testing.T) {
	if _, err := NewAdminVerifier("short"); err == nil {
		t.Fatal("expected error for short admin key")
	}
}
