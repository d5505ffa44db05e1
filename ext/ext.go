// Package ext defines the extension system for stride. Extensions are
// notified of batch lifecycle events (started, chunk completed,
// finished, failed, requeued, record saved) and can react to them —
// metrics, auditing, history capture, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Hooks are registered explicitly at
// construction time; there is no implicit interception of persistence
// events.
package ext

import (
	"context"
	"time"

	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// BatchStarted is called when a run begins from an empty cursor.
type BatchStarted interface {
	OnBatchStarted(ctx context.Context, u *unit.Unit, rec *record.Record) error
}

// BatchResumed is called when a run begins from a non-empty cursor.
type BatchResumed interface {
	OnBatchResumed(ctx context.Context, u *unit.Unit, rec *record.Record) error
}

// ChunkCompleted is called after each partial execution, with the
// number of items the chunk processed and the new cursor.
type ChunkCompleted interface {
	OnChunkCompleted(ctx context.Context, u *unit.Unit, processed int, cursor string) error
}

// BatchFinished is called when a run reaches its fixed point having
// made progress.
type BatchFinished interface {
	OnBatchFinished(ctx context.Context, u *unit.Unit, rec *record.Record, elapsed time.Duration) error
}

// BatchFailed is called when a complete execution raises.
type BatchFailed interface {
	OnBatchFailed(ctx context.Context, u *unit.Unit, err error) error
}

// BatchRequeued is called after a failed run is re-submitted for retry.
type BatchRequeued interface {
	OnBatchRequeued(ctx context.Context, u *unit.Unit, attempt int, runAt time.Time) error
}

// RecordSaved is called after every durable checkpoint write. History
// capture registers here: handlers receive the committed record rather
// than intercepting store internals.
type RecordSaved interface {
	OnRecordSaved(ctx context.Context, rec *record.Record) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
