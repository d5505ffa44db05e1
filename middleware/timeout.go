package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/stride/unit"
)

// Timeout returns middleware that enforces an execution deadline on the
// whole complete execution. If d is non-zero, a context.WithTimeout
// wraps the handler call. When the deadline is exceeded the context is
// cancelled and the handler should return context.DeadlineExceeded.
//
// Individual chunks are bounded separately by the runner's chunk
// timeout; this deadline caps the run across all chunks.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *unit.Invocation, next Handler) error {
		if d > 0 {
			logger.Debug("batch execution timeout set",
				slog.String("batch_key", inv.Unit.Key()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
