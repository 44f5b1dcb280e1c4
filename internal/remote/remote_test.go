// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestStatusError_Permanent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		e := &StatusError{StatusCode: tt.code}
		if got := e.Permanent(); got != tt.want {
			t.Errorf("Permanent() for %d = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"callsync"}`))
		case "/bad-json":
			_, _ = w.Write([]byte(`{"name":`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	var out struct {
		Name string `json:"name"`
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ok", http.NoBody)
	if err := Do(ctx, srv.Client(), "test", req, &out); err != nil {
		t.Fatalf("Do(/ok) error = %v", err)
	}
	if out.Name != "callsync" {
		t.Errorf("decoded name = %q", out.Name)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/bad-json", http.NoBody)
	if err := Do(ctx, srv.Client(), "test", req, &out); err == nil {
		t.Error("Do(/bad-json) should fail to decode")
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/down", http.NoBody)
	err := Do(ctx, srv.Client(), "test", req, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Do(/down) error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable || se.Body != "maintenance" || se.Path != "/down" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestBreaker_OpensOnTransientFailures(t *testing.T) {
	t.Parallel()

	b := NewBreakerWithSettings("test-transient", BreakerSettings{MinRequests: 3, Timeout: time.Hour})
	boom := errors.New("connection reset")

	for i := 0; i < 3; i++ {
		if _, err := Execute(b, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d error = %v, want %v", i, err, boom)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %s, want open", b.State())
	}

	called := false
	_, err := Execute(b, func() (int, error) {
		called = true
		return 1, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if called {
		t.Error("open breaker should not call fn")
	}
}

func TestBreaker_IgnoresPermanentClientErrors(t *testing.T) {
	t.Parallel()

	b := NewBreakerWithSettings("test-permanent", BreakerSettings{MinRequests: 2, Timeout: time.Hour})
	unauthorized := &StatusError{StatusCode: http.StatusUnauthorized}

	for i := 0; i < 5; i++ {
		_, err := Execute(b, func() (string, error) { return "", unauthorized })
		if !errors.Is(err, unauthorized) {
			t.Fatalf("error = %v, want the status error", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed", b.State())
	}

	got, err := Execute(b, func() (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Errorf("Execute() = (%q, %v), want ok", got, err)
	}
}
