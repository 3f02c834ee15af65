package insights

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of tries, not retries.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is multiplied by the attempt number for each
	// backoff: 2s, 4s, 6s...
	DefaultRetryDelay = 2 * time.Second
)

// RetryPolicy parameterises Retry.
type RetryPolicy struct {
	MaxAttempts int

	// Backoff returns the delay after the zero-based attempt that just
	// failed.
	Backoff func(attempt int) time.Duration

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries three times with a linear 2s step.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     LinearBackoff(DefaultRetryDelay),
		Sleep:       SleepContext,
	}
}

// LinearBackoff returns base*(attempt+1).
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt+1)
	}
}

// SleepContext blocks for d or until ctx is cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Retry calls fn until it succeeds or the policy runs out of attempts.
//
// When the last attempt fails with a 429 the result wraps
// ErrRateLimitExceeded; any other final failure wraps ErrRequestFailed.
// Both keep the last underlying error in the chain. ErrNoAnalysisResult
// is returned straight away, as is any error once ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = LinearBackoff(DefaultRetryDelay)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if permanent(err) || ctx.Err() != nil {
			return zero, err
		}

		if attempt == attempts-1 {
			if IsRateLimited(err) {
				return zero, fmt.Errorf("%w (%d attempts): %w",
					ErrRateLimitExceeded, attempts, err)
			}
			return zero, fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}

		if err := sleep(ctx, backoff(attempt)); err != nil {
			return zero, err
		}
	}
}

func permanent(err error) bool {
	return errors.Is(err, ErrNoAnalysisResult) ||
		errors.Is(err, ErrConfiguration)
}
