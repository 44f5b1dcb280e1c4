// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package lock provides the cross-process single-run lock.
//
// The orchestrator already refuses overlapping runs inside one process. When
// several replicas share one watermark, a Redis-backed lock extends that
// guarantee across processes. Without Redis the NoopLocker always grants.
package lock

import (
	"context"

	"github.com/tomtom215/callsync/internal/config"
)

// Locker grants the run slot to at most one holder at a time.
type Locker interface {
	// TryAcquire returns ok=false without blocking when another holder has
	// the lock. On success release must be called exactly once.
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
	Close() error
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

// TryAcquire implements Locker.
func (NoopLocker) TryAcquire(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}

// Close implements Locker.
func (NoopLocker) Close() error { return nil }

// New returns a RedisLock when cfg names a Redis address, else a NoopLocker.
func New(ctx context.Context, cfg config.LockConfig) (Locker, error) {
	if cfg.RedisAddr == "" {
		return NoopLocker{}, nil
	}
	l, err := OpenRedisLock(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}
