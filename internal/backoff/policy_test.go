package backoff

import (
	"testing"
	"time"
)

func TestCompute_ExponentialNoJitter(t *testing.T) {
	policy := Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ComputeWithRand(policy, tt.attempt, 0); got != tt.want {
			t.Errorf("Compute(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCompute_CappedAtMax(t *testing.T) {
	policy := Policy{InitialMs: 1000, MaxMs: 5000, Factor: 2, Jitter: 0}
	if got := ComputeWithRand(policy, 10, 0); got != 5000*time.Millisecond {
		t.Errorf("Compute() = %v, want capped at 5000ms", got)
	}
}

func TestDefaultPolicy_UsesInitialDelay(t *testing.T) {
	p := DefaultPolicy(1500 * time.Millisecond)
	if p.InitialMs != 1500 {
		t.Errorf("InitialMs = %v, want 1500", p.InitialMs)
	}
	if p.Jitter != 0 {
		t.Errorf("Jitter = %v, want 0 (jitterless cap per spec)", p.Jitter)
	}
}
