// Package backoff provides exponential backoff utilities with optional
// jitter for the provider layer's retry logic.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied to each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to the backoff.
	// Zero means no jitter, matching the spec's "exponential backoff with a
	// jitterless cap" retry policy for provider calls.
	Jitter float64
}

// Compute calculates the backoff duration for the given 0-indexed attempt.
// The formula is: base = initialMs * factor^attempt, jitter = base * jitter
// * random(), capped at maxMs.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the backoff duration using a caller-provided
// random value in [0,1), for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DefaultPolicy returns the provider retry policy: exponential factor 2,
// no jitter, capped at 30s, starting from initialDelay.
func DefaultPolicy(initialDelay time.Duration) Policy {
	return Policy{
		InitialMs: float64(initialDelay.Milliseconds()),
		MaxMs:     30000,
		Factor:    2,
		Jitter:    0,
	}
}
