// Package worker provides the batch consumption engine — an Executor
// that runs dequeued invocations through middleware, and a Pool that
// manages concurrent worker goroutines polling the invocation queue.
package worker

import (
	"context"
	"log/slog"

	"github.com/xraph/stride/middleware"
	"github.com/xraph/stride/unit"
)

// Runner executes a complete batch run for a unit. engine.Runner
// satisfies this interface.
type Runner interface {
	ExecuteComplete(ctx context.Context, u *unit.Unit, attempt int) error
}

// Executor runs a single invocation through the middleware chain and
// the complete-execution runner. Failure handling (checkpoint, retry
// re-submission, notifications) lives in the runner; the executor only
// reports the outcome.
type Executor struct {
	runner Runner
	mw     middleware.Middleware
	logger *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(runner Runner, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	return &Executor{
		runner: runner,
		mw:     middleware.Chain(mws...),
		logger: logger,
	}
}

// Execute runs the invocation through middleware and the runner.
func (e *Executor) Execute(ctx context.Context, inv *unit.Invocation) error {
	return e.mw(ctx, inv, func(ctx context.Context) error {
		return e.runner.ExecuteComplete(ctx, &inv.Unit, inv.Attempt)
	})
}
