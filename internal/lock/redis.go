// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/logging"
)

const (
	dialTimeout    = 3 * time.Second
	ioTimeout      = 2 * time.Second
	pingTimeout    = 2 * time.Second
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is never removed.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a SET NX PX lock with a per-acquisition token. While held, the
// lease is renewed every ttl/3 so a run longer than the TTL keeps the lock.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// OpenRedisLock connects to Redis and verifies connectivity with PING.
func OpenRedisLock(ctx context.Context, cfg config.LockConfig) (*RedisLock, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("lock ttl must be > 0")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisLock(rdb, cfg.Key, cfg.TTL), nil
}

// NewRedisLock wraps an existing client.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

// TryAcquire implements Locker.
func (l *RedisLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := keepAlive(l.ttl/3, func(ctx context.Context) (bool, error) {
		n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
		return n == 1, err
	}, l.key)

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			// The run context may already be cancelled at this point.
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{l.key}, token).Err(); err != nil {
				logging.Warn().Err(err).Str("key", l.key).Msg("Failed to release run lock, it will expire after its TTL")
			}
		})
	}
	return release, true, nil
}

// keepAlive calls renew every interval until the returned stop func is called
// or renew reports that the lease is gone. Transient errors are logged and
// retried on the next tick. stop blocks until the loop has exited.
func keepAlive(interval time.Duration, renew func(context.Context) (bool, error), key string) (stop func()) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rctx, rcancel := context.WithTimeout(ctx, ioTimeout)
				held, err := renew(rctx)
				rcancel()
				switch {
				case err != nil:
					if ctx.Err() != nil {
						return
					}
					logging.Warn().Err(err).Str("key", key).Msg("Failed to renew run lock lease")
				case !held:
					logging.Error().Str("key", key).Msg("Run lock lease lost to another holder")
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Close closes the Redis client.
func (l *RedisLock) Close() error {
	return l.rdb.Close()
}
