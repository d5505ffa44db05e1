// Package retry re-submits failed batch units for later attempts.
//
// Re-submission is the durability half of the at-least-once contract:
// a failed or crashed run leaves its checkpoint behind, and the retried
// invocation resumes from it. Delays follow a pluggable backoff
// strategy and attempts can be bounded.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/backoff"
	"github.com/xraph/stride/id"
	"github.com/xraph/stride/unit"
)

// Dispatcher schedules retry invocations onto the batch queue.
type Dispatcher struct {
	store       unit.Store
	strategy    backoff.Strategy
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStrategy sets the delay strategy between attempts.
func WithStrategy(s backoff.Strategy) Option {
	return func(d *Dispatcher) { d.strategy = s }
}

// WithMaxAttempts bounds retries; 0 retries indefinitely.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher pushing onto store.
func New(store unit.Store, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		strategy: backoff.Default(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues an invocation of u for the given attempt, delayed by
// the backoff strategy. Attempt 0 is an immediate first submission; it
// never counts against the attempt bound and carries no delay.
// It returns the time the invocation becomes due.
func (d *Dispatcher) Submit(ctx context.Context, u *unit.Unit, attempt int) (time.Time, error) {
	if attempt > 0 && d.maxAttempts > 0 && attempt > d.maxAttempts {
		return time.Time{}, fmt.Errorf("%w: %q attempt %d of %d",
			stride.ErrMaxAttemptsExceeded, u.Key(), attempt, d.maxAttempts)
	}

	now := d.now()
	runAt := now
	if attempt > 0 {
		runAt = now.Add(d.strategy(attempt))
	}

	inv := &unit.Invocation{
		ID:         id.NewInvocationID(),
		Unit:       *u,
		Attempt:    attempt,
		RunAt:      runAt,
		EnqueuedAt: now,
	}
	if err := d.store.PushInvocation(ctx, inv); err != nil {
		return time.Time{}, fmt.Errorf("stride/retry: push invocation for %q: %w", u.Key(), err)
	}

	d.logger.Debug("invocation enqueued",
		slog.String("batch_key", u.Key()),
		slog.String("invocation_id", inv.ID.String()),
		slog.Int("attempt", attempt),
		slog.Time("run_at", runAt),
	)
	return runAt, nil
}
