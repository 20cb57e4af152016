// Package retry provides a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

var errRetryable = errors.New("retryable outcome")

// Policy describes how many times an operation runs and when it repeats.
type Policy[T any] struct {
	// MaxAttempts is the total number of calls, including the first. Values below 1 mean 1.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Retryable decides whether the outcome of an attempt warrants another try.
	Retryable func(T) bool
	// OnRetry, if set, is invoked once the delay has elapsed, right before a repeated attempt.
	OnRetry func(attempt int, last T)
}

// Do runs fn until it returns a non-retryable outcome, attempts are
// exhausted, or ctx is cancelled during the delay. The last outcome is
// always returned along with the number of attempts made.
func (p Policy[T]) Do(ctx context.Context, fn func(ctx context.Context, attempt int) T) (T, int) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		last     T
		attempts int
	)

	op := func() error {
		attempts++
		if attempts > 1 && p.OnRetry != nil {
			p.OnRetry(attempts, last)
		}

		last = fn(ctx, attempts)
		if p.Retryable != nil && p.Retryable(last) {
			return errRetryable
		}
		return nil
	}

	notify := func(_ error, wait time.Duration) {
		slog.Debug("retrying upstream call",
			"attempt", attempts+1,
			"max_attempts", maxAttempts,
			"delay", wait,
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(maxAttempts-1)),
		ctx,
	)

	// The error only reports exhaustion or cancellation; the caller acts on last.
	_ = backoff.RetryNotify(op, b, notify)

	return last, attempts
}
