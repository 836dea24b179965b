package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentforge/agentcore/internal/backoff"
	"github.com/agentforge/agentcore/pkg/models"
)

type fakeProvider struct {
	createCalls int
	failTimes   int
	failKind    Kind
}

func (f *fakeProvider) Name() string               { return "fake" }
func (f *fakeProvider) SupportsPromptCaching() bool { return false }

func (f *fakeProvider) Stream(ctx context.Context, messages []models.Message, system string, tools []ToolDef, maxTokens int) (<-chan StreamDelta, func() (StreamFinal, error), error) {
	return nil, nil, nil
}

func (f *fakeProvider) Create(ctx context.Context, messages []models.Message, system string, maxTokens int) (StreamFinal, error) {
	f.createCalls++
	if f.createCalls <= f.failTimes {
		return StreamFinal{}, NewCallError("fake", "m", errors.New("fail")).withKind(f.failKind)
	}
	return StreamFinal{StopReason: StopEndTurn}, nil
}

func (f *fakeProvider) CountTokens(ctx context.Context, messages []models.Message, system string, tools []ToolDef) (int, error) {
	return 0, nil
}

func (e *CallError) withKind(k Kind) *CallError {
	e.Kind = k
	return e
}

func TestWithRetry_RetriesOnRetriableKind(t *testing.T) {
	fp := &fakeProvider{failTimes: 2, failKind: KindServerError}
	var retryEvents []models.RetryData
	p := WithRetry(fp, RetryConfig{
		MaxRetries: 3,
		Policy:     backoff.Policy{InitialMs: 1, MaxMs: 2, Factor: 1, Jitter: 0},
		OnRetry:    func(d models.RetryData) { retryEvents = append(retryEvents, d) },
	})

	final, err := p.Create(context.Background(), nil, "", 100)
	if err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}
	if final.StopReason != StopEndTurn {
		t.Errorf("StopReason = %v, want end_turn", final.StopReason)
	}
	if fp.createCalls != 3 {
		t.Errorf("createCalls = %d, want 3", fp.createCalls)
	}
	if len(retryEvents) != 2 {
		t.Errorf("retry events = %d, want 2", len(retryEvents))
	}
}

func TestWithRetry_DoesNotRetryNonRetriableKind(t *testing.T) {
	fp := &fakeProvider{failTimes: 5, failKind: KindAuth}
	p := WithRetry(fp, RetryConfig{
		MaxRetries: 3,
		Policy:     backoff.Policy{InitialMs: 1, MaxMs: 2, Factor: 1, Jitter: 0},
	})

	_, err := p.Create(context.Background(), nil, "", 100)
	if err == nil {
		t.Fatal("Create() error = nil, want error")
	}
	if fp.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1 (no retry for auth errors)", fp.createCalls)
	}
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	fp := &fakeProvider{failTimes: 100, failKind: KindRateLimit}
	p := WithRetry(fp, RetryConfig{
		MaxRetries: 100,
		Policy:     backoff.Policy{InitialMs: 50, MaxMs: 1000, Factor: 1, Jitter: 0},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Create(ctx, nil, "", 100)
	if err == nil {
		t.Fatal("Create() error = nil, want error from cancellation")
	}
}
