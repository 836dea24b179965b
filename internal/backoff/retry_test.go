package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

type retriableError struct{ retry bool }

func (e retriableError) Error() string { return "boom" }

func TestRetry_SucceedsAfterRetriableFailures(t *testing.T) {
	policy := Policy{InitialMs: 1, MaxMs: 5, Factor: 1, Jitter: 0}
	calls := 0
	var retries []int

	value, err := Retry(context.Background(), policy, 3,
		func(err error) bool { return errors.As(err, new(retriableError)) },
		func(attempt int, err error) { retries = append(retries, attempt) },
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			if calls < 3 {
				return "", retriableError{retry: true}
			}
			return "ok", nil
		},
	)
	if err != nil {
		t.Fatalf("Retry() error = %v, want nil", err)
	}
	if value != "ok" {
		t.Errorf("Retry() = %q, want ok", value)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(retries) != 2 {
		t.Errorf("retry callbacks = %d, want 2", len(retries))
	}
}

func TestRetry_NonRetriableStopsImmediately(t *testing.T) {
	policy := Policy{InitialMs: 1, MaxMs: 5, Factor: 1, Jitter: 0}
	calls := 0
	retryCalled := false

	_, err := Retry(context.Background(), policy, 3,
		func(err error) bool { return false },
		func(attempt int, err error) { retryCalled = true },
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", errors.New("fatal")
		},
	)
	if err == nil {
		t.Fatalf("Retry() error = nil, want an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-retriable error)", calls)
	}
	if retryCalled {
		t.Errorf("onRetry should not be called for a non-retriable error")
	}
}

func TestRetry_ExhaustsMaxRetries(t *testing.T) {
	policy := Policy{InitialMs: 1, MaxMs: 5, Factor: 1, Jitter: 0}
	calls := 0

	_, err := Retry(context.Background(), policy, 2,
		func(error) bool { return true },
		nil,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", errors.New("still failing")
		},
	)
	if err == nil {
		t.Fatal("Retry() error = nil, want an error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoffSleep(t *testing.T) {
	policy := Policy{InitialMs: 50, MaxMs: 1000, Factor: 1, Jitter: 0}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, 5,
		func(error) bool { return true },
		nil,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", errors.New("retriable")
		},
	)
	if err == nil {
		t.Fatal("Retry() error = nil, want an error after context cancellation")
	}
	if calls > 2 {
		t.Errorf("calls = %d, expected cancellation to stop retries early", calls)
	}
}
