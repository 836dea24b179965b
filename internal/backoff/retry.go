package backoff

import (
	"context"
	"errors"
)

// ErrMaxAttemptsExhausted names the exhausted-retries condition. Retry does
// not return it: once attempts run out, Retry returns the last error from fn.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// OnRetry is called after a retriable failure, before sleeping, with the
// 0-indexed attempt just made and the error that caused it.
type OnRetry func(attempt int, err error)

// Retry executes fn, retrying on errors for which isRetryable returns true.
// attempt is 0-indexed and passed to fn for logging. maxRetries is the
// number of retries allowed beyond the first attempt (so up to
// maxRetries+1 calls to fn total). Non-retriable errors and context
// cancellation return immediately.
func Retry[T any](
	ctx context.Context,
	policy Policy,
	maxRetries int,
	isRetryable func(error) bool,
	onRetry OnRetry,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxRetries {
			return zero, err
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		if err := SleepWithBackoff(ctx, policy, attempt); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
