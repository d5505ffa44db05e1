package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/stride/unit"
)

// Logging returns middleware that logs batch start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *unit.Invocation, next Handler) error {
		logger.Info("batch execution started",
			slog.String("batch_key", inv.Unit.Key()),
			slog.String("invocation_id", inv.ID.String()),
			slog.Int("attempt", inv.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("batch execution failed",
				slog.String("batch_key", inv.Unit.Key()),
				slog.String("invocation_id", inv.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("batch execution completed",
				slog.String("batch_key", inv.Unit.Key()),
				slog.String("invocation_id", inv.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
