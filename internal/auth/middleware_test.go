// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

const testAdminKey = "operator-key-for-tests"

func newTestMiddleware(t *testing.T, authMode string) (*Middleware, *JWTManager) {
	t.Helper()
	jwtMgr, err := NewJWTManager(config.SecurityConfig{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	admin, err := NewAdminVerifier(testAdminKey)
	if err != nil {
		t.Fatalf("NewAdminVerifier: %v", err)
	}
	return NewMiddleware(jwtMgr, admin, authMode), jwtMgr
}

func okHandler(claimsSeen **Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claimsSeen != nil {
			if c, ok := ClaimsFromContext(r.Context()); ok {
				*claimsSeen = c
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSession(t *testing.T) {
	mw, jwtMgr := newTestMiddleware(t, "token")

	validToken, err := jwtMgr.GenerateSessionToken("user-1", "session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + validToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *Claims
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/deck", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			mw.RequireSession(okHandler(&seen)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if seen == nil {
					t.Fatal("handler did not receive claims")
				}
				if seen.UserID != "user-1" || seen.SessionID != "session-1" {
					t.Errorf("claims = %q/%q, want user-1/session-1", seen.UserID, seen.SessionID)
				}
			}
		})
	}
}

func TestRequireSessionAuthModeNone(t *testing.T) {
	mw, _ := newTestMiddleware(t, "none")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/deck", nil)
	rec := httptest.NewRecorder()
	mw.RequireSession(okHandler(nil)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth mode none", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	mw, jwtMgr := newTestMiddleware(t, "token")

	deviceToken, err := jwtMgr.GenerateSessionToken("user-1", "session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}

	tests := []struct {
		name       string
		adminKey   string
		authHeader string
		wantStatus int
	}{
		{"valid admin key", testAdminKey, "", http.StatusOK},
		{"wrong admin key", "wrong-key-but-long-enough", "", http.StatusForbidden},
		{"device token only", "", "Bearer " + deviceToken, http.StatusForbidden},
		{"nothing", "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil)
			if tt.adminKey != "" {
				req.Header.Set(AdminKeyHeader, tt.adminKey)
			}
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			mw.RequireAdmin(okHandler(nil)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func signTestToken(t *testing.T, mgr *JWTManager, claims *Claims) (string, error) {
	t.Helper()
	now := time.Now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Hour))
	claims.IssuedAt = jwt.NewNumericDate(now)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(mgr.secret)
}

func TestRequireAdminAcceptsAdminRoleToken(t *testing.T) {
	mw, jwtMgr := newTestMiddleware(t, "token")

	// Mint a token with the admin role directly.
	claims := &Claims{UserID: "op-1", Role: models.RoleAdmin}
	token, err := signTestToken(t, jwtMgr, claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mw.RequireAdmin(okHandler(nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin role token", rec.Code)
	}
}

func TestRequireAdminAuthModeNoneStillChecksBadKey(t *testing.T) {
	mw, _ := newTestMiddleware(t, "none")

	// No key at all passes in auth mode none.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil)
	rec := httptest.NewRecorder()
	mw.RequireAdmin(okHandler(nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth mode none", rec.Code)
	}

	// A presented but wrong key is still rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil)
	req.Header.Set(AdminKeyHeader, "wrong-key-but-long-enough")
	rec = httptest.NewRecorder()
	mw.RequireAdmin(okHandler(nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for wrong key", rec.Code)
	}
}
