package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/stride/id"
	"github.com/xraph/stride/middleware"
	"github.com/xraph/stride/store/memory"
	"github.com/xraph/stride/unit"
	"github.com/xraph/stride/worker"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner records the units it was asked to run.
type fakeRunner struct {
	mu       sync.Mutex
	keys     []string
	attempts []int
	delay    time.Duration
	err      error
}

func (f *fakeRunner) ExecuteComplete(ctx context.Context, u *unit.Unit, attempt int) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.keys = append(f.keys, u.Key())
	f.attempts = append(f.attempts, attempt)
	f.mu.Unlock()
	return f.err
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func setupTestPool(t *testing.T, concurrency int, pollInterval time.Duration) (
	*worker.Pool, *memory.Store, *fakeRunner,
) {
	t.Helper()
	logger := discard()
	s := memory.New()
	runner := &fakeRunner{}

	executor := worker.NewExecutor(runner, logger, middleware.Recover(logger))
	pool := worker.NewPool(s, executor, logger,
		worker.WithPoolConcurrency(concurrency),
		worker.WithPollInterval(pollInterval),
	)
	return pool, s, runner
}

func pushInvocation(t *testing.T, s *memory.Store, suffix string, attempt int, runAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	inv := &unit.Invocation{
		ID:         id.NewInvocationID(),
		Unit:       unit.Unit{KeySuffix: suffix, Handler: "noop", ChunkSize: 10},
		Attempt:    attempt,
		RunAt:      runAt,
		EnqueuedAt: now,
	}
	if err := s.PushInvocation(context.Background(), inv); err != nil {
		t.Fatalf("PushInvocation: %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	pool, _, _ := setupTestPool(t, 2, 50*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Double stop should be no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_RestartAfterStop(t *testing.T) {
	pool, s, runner := setupTestPool(t, 1, 10*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	// A restarted pool must keep consuming the queue.
	pushInvocation(t, s, "after-restart", 0, time.Now().UTC())
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("restart error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for runner.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out: restarted pool processed nothing")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := pool.Stop(ctx2); err != nil {
		t.Fatalf("second stop error: %v", err)
	}
}

func TestPool_ProcessesInvocation(t *testing.T) {
	pool, s, runner := setupTestPool(t, 1, 10*time.Millisecond)

	pushInvocation(t, s, "orders", 3, time.Now().UTC())

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for runner.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for invocation to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.keys[0] != "batch-record-orders" {
		t.Errorf("batch key = %q, want %q", runner.keys[0], "batch-record-orders")
	}
	if runner.attempts[0] != 3 {
		t.Errorf("attempt = %d, want 3", runner.attempts[0])
	}

	remaining, err := s.CountInvocations(context.Background())
	if err != nil {
		t.Fatalf("CountInvocations: %v", err)
	}
	if remaining != 0 {
		t.Errorf("queue length = %d, want 0", remaining)
	}
}

func TestPool_DefersFutureInvocation(t *testing.T) {
	pool, s, runner := setupTestPool(t, 1, 10*time.Millisecond)

	pushInvocation(t, s, "later", 0, time.Now().UTC().Add(time.Hour))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if got := runner.count(); got != 0 {
		t.Errorf("processed %d invocations, want 0 before RunAt", got)
	}
	remaining, err := s.CountInvocations(context.Background())
	if err != nil {
		t.Fatalf("CountInvocations: %v", err)
	}
	if remaining != 1 {
		t.Errorf("queue length = %d, want 1", remaining)
	}
}

func TestPool_RunnerErrorDoesNotStopPool(t *testing.T) {
	pool, s, runner := setupTestPool(t, 1, 10*time.Millisecond)
	runner.err = errors.New("run failed")

	pushInvocation(t, s, "a", 0, time.Now().UTC())
	pushInvocation(t, s, "b", 0, time.Now().UTC())

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for runner.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out: processed %d of 2", runner.count())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
}

func TestPool_GracefulShutdownWaitsForActiveRun(t *testing.T) {
	pool, s, runner := setupTestPool(t, 1, 10*time.Millisecond)
	runner.delay = 200 * time.Millisecond

	pushInvocation(t, s, "slow", 0, time.Now().UTC())

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	// Give the worker time to dequeue and begin the slow run.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("graceful shutdown failed: %v", err)
	}

	if got := runner.count(); got != 1 {
		t.Errorf("processed %d invocations, want 1 (run must complete before stop)", got)
	}
}

func TestExecutor_MiddlewareOrder(t *testing.T) {
	logger := discard()
	runner := &fakeRunner{}

	var order []string
	mk := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *unit.Invocation, next middleware.Handler) error {
			order = append(order, name)
			return next(ctx)
		}
	}

	executor := worker.NewExecutor(runner, logger, mk("outer"), mk("inner"))
	inv := &unit.Invocation{
		ID:   id.NewInvocationID(),
		Unit: unit.Unit{KeySuffix: "mw", Handler: "noop"},
	}
	if err := executor.Execute(context.Background(), inv); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("middleware order = %v, want [outer inner]", order)
	}
	if runner.count() != 1 {
		t.Errorf("runner calls = %d, want 1", runner.count())
	}
}
