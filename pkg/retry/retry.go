// Package retry runs an operation under a bounded attempt policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackoffFunc returns the delay to wait before the given attempt (2, 3, ...).
type BackoffFunc func(attempt int) time.Duration

// Constant waits d between every pair of attempts.
func Constant(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Exponential doubles the delay from initial on every attempt, capped at max.
func Exponential(initial, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := initial
		for i := 2; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return d
	}
}

// Policy bounds how often an operation is attempted.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	Backoff     BackoffFunc
	// Retryable decides whether a failed attempt may be repeated. Nil
	// retries every error.
	Retryable func(error) bool
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// ExhaustedError is returned when every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, a non-retryable error occurs, attempts run
// out or ctx is done. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.delay(attempt)); err != nil {
				return attempt - 1, errors.Join(lastErr, err)
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt < max && p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
	}

	return max, &ExhaustedError{Attempts: max, Err: lastErr}
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
