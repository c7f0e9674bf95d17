// Package retry provides the single retry policy used by every call site
// that talks to a backend over the network.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted wraps the last error once the attempt budget is spent.
var ErrExhausted = errors.New("retry budget exhausted")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Errors not marked (or not classified by
// the policy's Retryable hook) fail immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries the transient marker.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Policy retries an operation with exponential backoff. The zero value is
// not usable; construct with explicit attempts and base delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Retryable optionally extends classification beyond the Transient marker.
	Retryable func(error) bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPolicy(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. Backoff doubles per attempt: base, 2x, 4x...
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.BaseDelay<<(attempt-1)); err != nil {
				return err
			}
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
		last = err
	}
	return errors.Join(ErrExhausted, last)
}

func (p Policy) retryable(err error) bool {
	if IsTransient(err) {
		return true
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
