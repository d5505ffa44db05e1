package stride

import "time"

// Config holds configuration for the batch Service.
type Config struct {
	// Concurrency is the number of worker goroutines consuming batch
	// invocations. The queue has a bounded consumer pool; an invocation
	// dequeued while all workers are busy waits in the store until a
	// worker polls again (block-and-poll, never dropped).
	Concurrency int

	// PollInterval is how often idle workers poll for due invocations.
	PollInterval time.Duration

	// LockTTL is the time-to-live of the per-batch distributed lock.
	// The lock is renewed at half the TTL while a run is in progress,
	// so a crashed holder frees the batch after at most one TTL.
	LockTTL time.Duration

	// ChunkTimeout bounds one partial execution, including its
	// checkpoint save round-trip.
	ChunkTimeout time.Duration

	// CompleteTimeout bounds one complete execution end to end.
	// Zero disables the deadline.
	CompleteTimeout time.Duration

	// MaxAttempts bounds how many times a failed run is re-submitted
	// for retry. Zero means unbounded, matching the historical
	// behavior of always re-enqueueing on failure.
	MaxAttempts int

	// RateLimit is the maximum sustained invocations per second the
	// worker pool will dequeue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the dequeue rate limiter.
	// Defaults to 1 when RateLimit is set and RateBurst is zero.
	RateBurst int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     7,
		PollInterval:    1 * time.Second,
		LockTTL:         60 * time.Second,
		ChunkTimeout:    173 * time.Second,
		CompleteTimeout: 1237 * time.Second,
		MaxAttempts:     0,
		ShutdownTimeout: 30 * time.Second,
	}
}
