package provider

import (
	"context"

	"github.com/agentforge/agentcore/internal/backoff"
	"github.com/agentforge/agentcore/pkg/models"
)

// RetryConfig controls the retry-with-backoff decorator wrapped around a
// Provider's Stream/Create/CountTokens calls.
type RetryConfig struct {
	MaxRetries int
	Policy     backoff.Policy
	// OnRetry, when set, is invoked before each backoff sleep so callers can
	// surface a models.RetryData event.
	OnRetry func(models.RetryData)
}

// retrying wraps a Provider so every call is retried per policy when the
// resulting CallError is retriable.
type retrying struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry returns a Provider that retries failed calls against inner per
// cfg, classifying errors via CallError.IsRetryable.
func WithRetry(inner Provider, cfg RetryConfig) Provider {
	return &retrying{inner: inner, cfg: cfg}
}

func (r *retrying) Name() string                   { return r.inner.Name() }
func (r *retrying) SupportsPromptCaching() bool     { return r.inner.SupportsPromptCaching() }

func isRetryable(err error) bool {
	if ce, ok := AsCallError(err); ok {
		return ce.IsRetryable()
	}
	return false
}

func (r *retrying) notify(attempt int, err error) {
	if r.cfg.OnRetry == nil {
		return
	}
	kind := string(KindUnclassified)
	if ce, ok := AsCallError(err); ok {
		kind = string(ce.Kind)
	}
	r.cfg.OnRetry(models.RetryData{
		Attempt:    attempt,
		MaxRetries: r.cfg.MaxRetries,
		ErrorKind:  kind,
	})
}

func (r *retrying) Stream(ctx context.Context, messages []models.Message, system string, tools []ToolDef, maxTokens int) (<-chan StreamDelta, func() (StreamFinal, error), error) {
	type streamResult struct {
		ch   <-chan StreamDelta
		wait func() (StreamFinal, error)
	}
	res, err := backoff.Retry(ctx, r.cfg.Policy, r.cfg.MaxRetries, isRetryable, r.notify,
		func(ctx context.Context, attempt int) (streamResult, error) {
			ch, wait, err := r.inner.Stream(ctx, messages, system, tools, maxTokens)
			if err != nil {
				return streamResult{}, err
			}
			return streamResult{ch: ch, wait: wait}, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return res.ch, res.wait, nil
}

func (r *retrying) Create(ctx context.Context, messages []models.Message, system string, maxTokens int) (StreamFinal, error) {
	return backoff.Retry(ctx, r.cfg.Policy, r.cfg.MaxRetries, isRetryable, r.notify,
		func(ctx context.Context, attempt int) (StreamFinal, error) {
			return r.inner.Create(ctx, messages, system, maxTokens)
		})
}

func (r *retrying) CountTokens(ctx context.Context, messages []models.Message, system string, tools []ToolDef) (int, error) {
	return backoff.Retry(ctx, r.cfg.Policy, r.cfg.MaxRetries, isRetryable, r.notify,
		func(ctx context.Context, attempt int) (int, error) {
			return r.inner.CountTokens(ctx, messages, system, tools)
		})
}
