// Package backoff provides pluggable wait strategies for retry
// re-submission and blocking lock acquisition. Strategies are stateless
// and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed). Attempt 1
// is the first wait after the initial failure or missed acquisition.
type Strategy func(attempt int) time.Duration

// Constant returns a strategy with a fixed delay for every attempt.
func Constant(interval time.Duration) Strategy {
	return func(int) time.Duration { return interval }
}

// Exponential returns a strategy that doubles the delay each attempt:
// min(initial * 2^(attempt-1), max). A max of zero means uncapped.
func Exponential(initial, max time.Duration) Strategy {
	return func(attempt int) time.Duration {
		d := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// FullJitter returns an exponential strategy with full jitter: a random
// delay in [0, min(initial * 2^(attempt-1), max)). Jitter prevents a
// thundering herd when many batches retry simultaneously.
func FullJitter(initial, max time.Duration) Strategy {
	exp := Exponential(initial, max)
	return func(attempt int) time.Duration {
		return time.Duration(rand.Float64() * float64(exp(attempt))) //nolint:gosec // jitter intentionally uses non-crypto rand
	}
}

// Default is the strategy used by the engine when none is configured:
// full jitter with 1s initial and 1m cap.
func Default() Strategy {
	return FullJitter(1*time.Second, 1*time.Minute)
}
