package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stride/backoff"
	"github.com/xraph/stride/ext"
	"github.com/xraph/stride/id"
	"github.com/xraph/stride/lock"
	"github.com/xraph/stride/notify"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// Submitter re-submits a failed unit for a later attempt.
// retry.Dispatcher satisfies this interface; it is declared here so the
// runner does not depend on the retry package.
type Submitter interface {
	Submit(ctx context.Context, u *unit.Unit, attempt int) (time.Time, error)
}

// Runner drives the checkpoint/lock/retry orchestration loop: partial
// executions chunk by chunk, the complete-execution fixed-point loop,
// stale-run resets, milestone notifications, and failure-triggered
// re-enqueue.
type Runner struct {
	records  record.Store
	locks    lock.Store
	registry *unit.Registry
	notifier *notify.Notifier
	retrier  Submitter
	exts     *ext.Registry
	logger   *slog.Logger

	lockTTL      time.Duration
	chunkTimeout time.Duration
	acquireWait  backoff.Strategy
	now          func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLockTTL sets the distributed lock TTL for complete executions.
func WithLockTTL(ttl time.Duration) RunnerOption {
	return func(r *Runner) { r.lockTTL = ttl }
}

// WithChunkTimeout bounds one partial execution including its
// checkpoint save.
func WithChunkTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.chunkTimeout = d }
}

// WithAcquireWait sets the wait strategy between lock acquisition
// attempts.
func WithAcquireWait(s backoff.Strategy) RunnerOption {
	return func(r *Runner) { r.acquireWait = s }
}

// WithRetrier sets the retry dispatcher used on run failure. Without
// one, failed runs are not re-submitted.
func WithRetrier(s Submitter) RunnerOption {
	return func(r *Runner) { r.retrier = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(
	records record.Store,
	locks lock.Store,
	registry *unit.Registry,
	notifier *notify.Notifier,
	exts *ext.Registry,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		records:      records,
		locks:        locks,
		registry:     registry,
		notifier:     notifier,
		exts:         exts,
		logger:       logger,
		lockTTL:      60 * time.Second,
		chunkTimeout: 173 * time.Second,
		acquireWait:  backoff.Constant(100 * time.Millisecond),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// lastProcessedID loads (or lazily creates) the checkpoint record for
// the unit, applies the stale-run reset policy against the unit's
// expiration deadline, and persists the result. It returns the cursor
// the run should resume from: empty when the batch starts from scratch.
func (r *Runner) lastProcessedID(ctx context.Context, u *unit.Unit) (string, *record.Record, error) {
	now := r.now()

	rec, err := record.LoadOrInit(ctx, r.records, u.Key(), now)
	if err != nil {
		return "", nil, err
	}

	last := rec.LastProcessedID
	if record.ResetIfExpired(rec, u.Deadline(now)) {
		last = ""
	}

	if err := record.Save(ctx, r.records, rec, now); err != nil {
		return "", nil, err
	}
	r.exts.EmitRecordSaved(ctx, rec)

	return last, rec, nil
}

// ExecutePartial runs one chunk for the unit: it stamps the run start
// when needed, processes the next bounded chunk while the run is still
// in time, checkpoints the advanced cursor and counter in its own short
// round-trip, and returns the new cursor. An unchanged cursor is the
// fixed-point signal consumed by ExecuteComplete.
func (r *Runner) ExecutePartial(ctx context.Context, u *unit.Unit) (string, error) {
	h, err := r.registry.Resolve(u.Handler)
	if err != nil {
		return "", err
	}
	return r.partial(ctx, h, u)
}

func (r *Runner) partial(ctx context.Context, h unit.Handler, u *unit.Unit) (string, error) {
	if r.chunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.chunkTimeout)
		defer cancel()
	}

	now := r.now()

	rec, err := record.LoadOrInit(ctx, r.records, u.Key(), now)
	if err != nil {
		return "", err
	}
	actual := u.LastProcessedID

	// A fresh cursor or a record without a start time means a new run
	// begins with this chunk. Starting a new run clears the previous
	// finish marker.
	if u.LastProcessedID == "" || rec.LastStartedAt == nil {
		started := now
		rec.LastStartedAt = &started
		rec.LastFinishedAt = nil
	}

	// Out-of-time runs stop making progress while the record keeps the
	// partial history; the deadline is evaluated only at chunk
	// boundaries, so a chunk in progress always completes.
	processed := 0
	if u.InTime(*rec.LastStartedAt, now) {
		r.notifier.Notify(ctx, unit.ActionGet, u, rec)

		ids, getErr := h.Get(ctx, actual, u.ChunkSize)
		if getErr != nil {
			return "", fmt.Errorf("stride/engine: get chunk for %q: %w", u.Key(), getErr)
		}

		for _, itemID := range ids {
			if execErr := h.Execute(ctx, itemID); execErr != nil {
				return "", fmt.Errorf("stride/engine: execute %q for %q: %w", itemID, u.Key(), execErr)
			}
			r.notifier.Notify(ctx, unit.ActionExecute, u, rec)
			actual = itemID
			rec.LastProcessedCount++
			processed++
		}
	}

	// The cursor is updated only after the corresponding executes
	// returned: after a successful save, everything up to and
	// including the cursor is guaranteed processed.
	rec.LastProcessedID = actual
	if err := record.Save(ctx, r.records, rec, r.now()); err != nil {
		return "", err
	}
	r.exts.EmitRecordSaved(ctx, rec)
	r.exts.EmitChunkCompleted(ctx, u, processed, actual)

	return actual, nil
}

// ExecuteComplete runs the unit to its fixed point: acquire the batch
// lock, read the stale-aware cursor, start or resume, loop partial
// executions until a chunk makes no progress, finish when the cursor
// moved, and release the lock on every path. On any failure inside the
// guarded section the failure is notified, the unit is re-submitted for
// a later attempt, and the original error is returned — with the
// progress already checkpointed.
//
// attempt is the retry attempt of this invocation; externally triggered
// runs pass 0.
func (r *Runner) ExecuteComplete(ctx context.Context, u *unit.Unit, attempt int) error {
	// A missing handler is an integration failure: fatal for this
	// invocation and never re-submitted, since it would
	// deterministically fail again.
	h, err := r.registry.Resolve(u.Handler)
	if err != nil {
		return err
	}

	owner := id.NewInvocationID().String()
	handle, err := lock.Acquire(ctx, r.locks, u.LockKey(), owner, r.lockTTL, r.acquireWait, r.logger)
	if err != nil {
		return err
	}
	defer handle.Release(context.WithoutCancel(ctx))

	if err := r.run(ctx, h, u); err != nil {
		r.logger.Error("error processing batch",
			slog.String("batch_key", u.Key()),
			slog.String("error", err.Error()),
		)
		r.exts.EmitBatchFailed(ctx, u, err)
		r.notifier.Notify(context.WithoutCancel(ctx), unit.ActionFailure, u, nil)
		r.requeue(context.WithoutCancel(ctx), u, attempt)
		return err
	}
	return nil
}

// run is the guarded section of a complete execution, entered with the
// batch lock held.
func (r *Runner) run(ctx context.Context, h unit.Handler, u *unit.Unit) error {
	startedAt := r.now()

	initial, rec, err := r.lastProcessedID(ctx, u)
	if err != nil {
		return err
	}

	if initial == "" {
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("stride/engine: start %q: %w", u.Key(), err)
		}
		r.exts.EmitBatchStarted(ctx, u, rec)
		r.notifier.Notify(ctx, unit.ActionStart, u, rec)
	} else {
		if err := h.Resume(ctx); err != nil {
			return fmt.Errorf("stride/engine: resume %q: %w", u.Key(), err)
		}
		r.exts.EmitBatchResumed(ctx, u, rec)
		r.notifier.Notify(ctx, unit.ActionResume, u, rec)
	}

	// Fixed-point loop: the backlog size is unknown and chunk
	// boundaries are not aligned to it, so "no progress in the last
	// chunk" is the only reliable termination signal.
	previous := initial
	cursor := initial
	first := true
	for first || previous != cursor {
		first = false
		u.LastProcessedID = cursor

		next, partialErr := r.partial(ctx, h, u)
		if partialErr != nil {
			return partialErr
		}
		previous = cursor
		cursor = next
	}

	// Finish only when this run made progress and is still in time;
	// an out-of-time run stops silently and stays resumable.
	if cursor != initial {
		now := r.now()
		rec, err = record.LoadOrInit(ctx, r.records, u.Key(), now)
		if err != nil {
			return err
		}
		if rec.LastStartedAt != nil && u.InTime(*rec.LastStartedAt, now) {
			if err := h.Finish(ctx); err != nil {
				return fmt.Errorf("stride/engine: finish %q: %w", u.Key(), err)
			}
			r.notifier.Notify(ctx, unit.ActionFinish, u, rec)

			finished := now
			rec.LastFinishedAt = &finished
			if err := record.Save(ctx, r.records, rec, now); err != nil {
				return err
			}
			r.exts.EmitRecordSaved(ctx, rec)
			r.exts.EmitBatchFinished(ctx, u, rec, r.now().Sub(startedAt))
		}
	}

	return nil
}

// requeue re-submits the unit for a later attempt after a failed run.
// The next run resumes from the checkpoint already written; submission
// errors are logged, never masking the run's original failure.
func (r *Runner) requeue(ctx context.Context, u *unit.Unit, attempt int) {
	if r.retrier == nil {
		return
	}

	runAt, err := r.retrier.Submit(ctx, u, attempt+1)
	if err != nil {
		r.logger.Error("failed to re-submit batch for retry",
			slog.String("batch_key", u.Key()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		return
	}

	r.exts.EmitBatchRequeued(ctx, u, attempt+1, runAt)
	r.logger.Info("batch re-submitted for retry",
		slog.String("batch_key", u.Key()),
		slog.Int("attempt", attempt+1),
		slog.Time("run_at", runAt),
	)
}
