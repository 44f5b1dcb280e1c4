// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package retry runs remote calls under a bounded exponential backoff policy.
//
//	page, err := retry.Do(ctx, "source.fetch_page", policy, func(ctx context.Context) (source.Page, error) {
//	    return client.FetchPage(ctx, start, end, cursor)
//	})
//
// After the last attempt the operation's own error is returned unchanged, so
// callers can still inspect it with errors.As.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64

	// JitterFraction adds up to this fraction of the computed delay at random.
	JitterFraction float64

	// Retryable decides whether a failure is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool

	// OnRetry is called for each failed attempt that will be retried.
	// nil logs at warn level.
	OnRetry func(Attempt)
}

// Attempt describes one failed attempt.
type Attempt struct {
	Label     string
	Number    int
	Remaining int
	Delay     time.Duration
	Err       error
}

// FromConfig builds the process-wide policy. Unless RetryClientErrors is
// set, errors that declare themselves permanent are not retried.
func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		Factor:         cfg.Factor,
		JitterFraction: cfg.JitterFraction,
	}
	if !cfg.RetryClientErrors {
		p.Retryable = IsRetryable
	}
	return p
}

// Delay returns the wait before attempt+1, given attempt failed. r is a
// uniform random value in [0, 1).
func (p Policy) Delay(attempt int, r float64) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	d += d * p.JitterFraction * r
	return time.Duration(d)
}

// Injected in tests.
var (
	sleep   = sleepContext
	randomF = rand.Float64
)

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. Cancellation of ctx during a wait returns ctx.Err().
func Do[T any](ctx context.Context, label string, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return zero, err
		}

		a := Attempt{
			Label:     label,
			Number:    attempt,
			Remaining: attempts - attempt,
			Delay:     p.Delay(attempt, randomF()),
			Err:       err,
		}
		metrics.RetryAttempts.WithLabelValues(label).Inc()
		if p.OnRetry != nil {
			p.OnRetry(a)
		} else {
			logRetry(ctx, a)
		}

		if err := sleep(ctx, a.Delay); err != nil {
			return zero, err
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, label string, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, label, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func logRetry(ctx context.Context, a Attempt) {
	logging.Ctx(ctx).Warn().
		Err(a.Err).
		Str("operation", a.Label).
		Int("attempt", a.Number).
		Int("remaining", a.Remaining).
		Dur("delay", a.Delay).
		Msg("Retrying after failed attempt")
}

// permanent is implemented by errors that must not be retried, such as
// authentication failures and malformed requests.
type permanent interface {
	Permanent() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Permanent() bool { return true }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports false for errors that declare themselves permanent and
// for context cancellation.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var p permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}
