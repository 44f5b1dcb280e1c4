// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/callsync/internal/config"
)

func TestNoopLocker(t *testing.T) {
	t.Parallel()

	var l Locker = NoopLocker{}
	for i := 0; i < 2; i++ {
		release, ok, err := l.TryAcquire(context.Background())
		if err != nil || !ok {
			t.Fatalf("TryAcquire() = %v, %v, want granted", ok, err)
		}
		release()
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	l, err := New(context.Background(), config.LockConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := l.(NoopLocker); !ok {
		t.Errorf("New() without redis = %T, want NoopLocker", l)
	}
}

func TestOpenRedisLock_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.LockConfig
	}{
		{"missing key", config.LockConfig{RedisAddr: "127.0.0.1:1", TTL: time.Minute}},
		{"missing ttl", config.LockConfig{RedisAddr: "127.0.0.1:1", Key: "k"}},
		{"unreachable", config.LockConfig{RedisAddr: "127.0.0.1:1", Key: "k", TTL: time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := OpenRedisLock(ctx, tt.cfg); err == nil {
				t.Error("OpenRedisLock() error = nil, want error")
			}
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestKeepAlive(t *testing.T) {
	t.Parallel()

	t.Run("renews until stopped", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		stop := keepAlive(5*time.Millisecond, func(context.Context) (bool, error) {
			calls.Add(1)
			return true, nil
		}, "k")

		waitFor(t, func() bool { return calls.Load() >= 3 })
		stop()
		after := calls.Load()
		time.Sleep(30 * time.Millisecond)
		if got := calls.Load(); got != after {
			t.Errorf("renew calls after stop = %d, want %d", got, after)
		}
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		stop := keepAlive(5*time.Millisecond, func(context.Context) (bool, error) {
			if calls.Add(1) == 1 {
				return false, errors.New("connection reset")
			}
			return true, nil
		}, "k")
		defer stop()

		waitFor(t, func() bool { return calls.Load() >= 3 })
	})

	t.Run("lost lease ends the loop", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		stop := keepAlive(5*time.Millisecond, func(context.Context) (bool, error) {
			calls.Add(1)
			return false, nil
		}, "k")

		waitFor(t, func() bool { return calls.Load() >= 1 })
		time.Sleep(30 * time.Millisecond)
		if got := calls.Load(); got != 1 {
			t.Errorf("renew calls after lease lost = %d, want 1", got)
		}
		stop()
	})
}
