// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/trackforge/goclient/internal/logging"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 120 * time.Second
)

// RetryableError marks a failure that the RetryWrapper should retry
// with backoff rather than propagate immediately. Errors that don't
// satisfy this (via errors.As) are treated as fatal: logged and
// returned to the caller without retrying.
type RetryableError interface {
	error
	Retryable() bool
}

// RateLimitError additionally carries a server-suggested retry delay.
// When a wrapped call's error satisfies this interface, the wrapper
// waits RetryAfter() instead of the computed exponential backoff.
type RateLimitError interface {
	error
	RetryAfter() time.Duration
}

// Op is a unit of work subject to retry, matching WorkFunc's shape.
type Op func(ctx context.Context) error

// RetryWrapper reproduces the original Python implementation's
// ConnectionRetryWrapper: on failure it sleeps with a doubling
// backoff starting at 2s and capped at 120s, special-cases rate-limit
// errors by honoring their suggested delay instead, and resets the
// backoff to zero plus logs "Communication restored" the first time a
// call succeeds after a failure streak. Non-retryable errors are
// logged at error level and returned immediately without retrying.
type RetryWrapper struct {
	name    string
	daemon  *Daemon
	backoff time.Duration
	failing bool
}

// NewRetryWrapper builds a wrapper that attributes its log lines to
// name (typically "[backend N] (display_address)") and records the
// last observed backoff on d for later inspection via d.LastBackoff().
func NewRetryWrapper(name string, d *Daemon) *RetryWrapper {
	return &RetryWrapper{name: name, daemon: d}
}

// Do runs op, retrying with backoff while ctx is not done whenever op
// returns a RetryableError with Retryable() == true. It returns the
// first non-retryable error, or nil on eventual success.
func (r *RetryWrapper) Do(ctx context.Context, op Op) error {
	for {
		err := op(ctx)
		if err == nil {
			r.onSuccess()
			return nil
		}

		var rle RateLimitError
		if errors.As(err, &rle) {
			wait := rle.RetryAfter()
			logging.Warn().Err(err).Str("daemon", r.name).Dur("retry_after", wait).
				Msg("rate limited, backing off for server-suggested duration")
			r.failing = true
			if !r.sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		var re RetryableError
		if errors.As(err, &re) && re.Retryable() {
			r.failing = true
			wait := r.nextBackoff()
			logging.Warn().Err(err).Str("daemon", r.name).Dur("backoff", wait).
				Msg("retryable error, backing off before retry")
			if r.daemon != nil {
				r.daemon.setLastBackoff(wait)
			}
			if !r.sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		logging.Error().Err(err).Str("daemon", r.name).Msg("non-retryable error, propagating")
		return err
	}
}

func (r *RetryWrapper) onSuccess() {
	if r.failing {
		logging.Info().Str("daemon", r.name).Msg("Communication restored")
	}
	r.failing = false
	r.backoff = 0
	if r.daemon != nil {
		r.daemon.setLastBackoff(0)
	}
}

func (r *RetryWrapper) nextBackoff() time.Duration {
	if r.backoff == 0 {
		r.backoff = initialBackoff
	} else {
		r.backoff *= 2
		if r.backoff > maxBackoff {
			r.backoff = maxBackoff
		}
	}
	return r.backoff
}

// sleep waits for d or until ctx is cancelled, returning false in the
// latter case.
func (r *RetryWrapper) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
