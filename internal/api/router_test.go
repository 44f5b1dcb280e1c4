// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/callsync/internal/auth"
	"github.com/tomtom215/callsync/internal/config"
)

const routerSecret = "router_test_secret_with_at_least_32_characters"

func newTestTokens(t *testing.T) *auth.JWTManager {
	t.Helper()
	tokens, err := auth.NewJWTManager(&config.SecurityConfig{
		APISecret: routerSecret,
		Issuer:    "callsync",
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	return tokens
}

func newTestRouter(t *testing.T, fs *fakeSync, tokens *auth.JWTManager) http.Handler {
	t.Helper()
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://ops.example.com"}
	cfg.RateLimitDisabled = true

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return NewRouter(NewHandler(fs, fakeState{}), NewChiMiddleware(cfg), tokens, ws).SetupChi()
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, &fakeSync{}, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health/live", http.StatusOK},
		{http.MethodGet, "/api/v1/health/ready", http.StatusOK},
		{http.MethodGet, "/api/v1/sync/status", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/trigger", http.StatusAccepted},
		{http.MethodPost, "/api/v1/sync/reset", http.StatusOK},
		{http.MethodGet, "/api/v1/ws", http.StatusTeapot},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/sync/trigger", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRouter_RequestIDAndSecurityHeaders(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, &fakeSync{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want req-abc", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if env := decodeEnvelope(t, rec); env.Metadata.RequestID != "req-abc" {
		t.Errorf("metadata.request_id = %q, want req-abc", env.Metadata.RequestID)
	}
}

func TestRouter_TokenGuardsMutatingRoutes(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)
	valid, err := tokens.GenerateToken("ops@example.com")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"trigger without token", http.MethodPost, "/api/v1/sync/trigger", "", http.StatusUnauthorized},
		{"trigger with token", http.MethodPost, "/api/v1/sync/trigger", "Bearer " + valid, http.StatusAccepted},
		{"trigger lowercase scheme", http.MethodPost, "/api/v1/sync/trigger", "bearer " + valid, http.StatusAccepted},
		{"trigger garbage token", http.MethodPost, "/api/v1/sync/trigger", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"trigger basic scheme", http.MethodPost, "/api/v1/sync/trigger", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"reset without token", http.MethodPost, "/api/v1/sync/reset", "", http.StatusUnauthorized},
		{"reset with token", http.MethodPost, "/api/v1/sync/reset", "Bearer " + valid, http.StatusOK},
		{"status stays open", http.MethodGet, "/api/v1/sync/status", "", http.StatusOK},
		{"health stays open", http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSync{}
			router := newTestRouter(t, fs, tokens)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				if fs.triggered != 0 || fs.resets != 0 {
					t.Error("handler ran for an unauthenticated request")
				}
				if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
					t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
				}
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, &fakeSync{}, nil)

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"https://ops.example.com", "https://ops.example.com"},
		{"https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/trigger", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestRouter_RateLimitSync(t *testing.T) {
	t.Parallel()
	cfg := DefaultChiMiddlewareConfig()
	router := NewRouter(NewHandler(&fakeSync{}, fakeState{}), NewChiMiddleware(cfg), nil, nil).SetupChi()

	var limited bool
	for i := 0; i < RateLimitSync.Requests+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/reset", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
				t.Errorf("error = %+v, want TOO_MANY_REQUESTS", env.Error)
			}
		}
	}
	if !limited {
		t.Errorf("no 429 after %d resets", RateLimitSync.Requests+1)
	}
}

func TestChiMiddlewareConfigFromServer(t *testing.T) {
	t.Parallel()

	cfg := ChiMiddlewareConfigFromServer(config.ServerConfig{CORSOrigins: []string{"*"}, RateLimit: 0})
	if !cfg.RateLimitDisabled {
		t.Error("RateLimitDisabled = false for rate_limit 0")
	}
	cfg = ChiMiddlewareConfigFromServer(config.ServerConfig{RateLimit: 60})
	if cfg.RateLimitDisabled || cfg.RateLimitRequests != 60 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("config = %+v", cfg)
	}
}
