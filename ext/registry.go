package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time, so emit methods don't type-assert back
// to Extension.
type batchStartedEntry struct {
	name string
	hook BatchStarted
}

type batchResumedEntry struct {
	name string
	hook BatchResumed
}

type chunkCompletedEntry struct {
	name string
	hook ChunkCompleted
}

type batchFinishedEntry struct {
	name string
	hook BatchFinished
}

type batchFailedEntry struct {
	name string
	hook BatchFailed
}

type batchRequeuedEntry struct {
	name string
	hook BatchRequeued
}

type recordSavedEntry struct {
	name string
	hook RecordSaved
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Extensions are type-cached at registration time so emit
// calls iterate only over extensions implementing the relevant hook.
// Hook errors are logged and swallowed; lifecycle fan-out never aborts
// a batch.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	batchStarted   []batchStartedEntry
	batchResumed   []batchResumedEntry
	chunkCompleted []chunkCompletedEntry
	batchFinished  []batchFinishedEntry
	batchFailed    []batchFailedEntry
	batchRequeued  []batchRequeuedEntry
	recordSaved    []recordSavedEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(BatchStarted); ok {
		r.batchStarted = append(r.batchStarted, batchStartedEntry{name, h})
	}
	if h, ok := e.(BatchResumed); ok {
		r.batchResumed = append(r.batchResumed, batchResumedEntry{name, h})
	}
	if h, ok := e.(ChunkCompleted); ok {
		r.chunkCompleted = append(r.chunkCompleted, chunkCompletedEntry{name, h})
	}
	if h, ok := e.(BatchFinished); ok {
		r.batchFinished = append(r.batchFinished, batchFinishedEntry{name, h})
	}
	if h, ok := e.(BatchFailed); ok {
		r.batchFailed = append(r.batchFailed, batchFailedEntry{name, h})
	}
	if h, ok := e.(BatchRequeued); ok {
		r.batchRequeued = append(r.batchRequeued, batchRequeuedEntry{name, h})
	}
	if h, ok := e.(RecordSaved); ok {
		r.recordSaved = append(r.recordSaved, recordSavedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions in registration order.
func (r *Registry) Extensions() []Extension { return r.extensions }

func (r *Registry) hookError(hookName, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

// EmitBatchStarted notifies BatchStarted hooks.
func (r *Registry) EmitBatchStarted(ctx context.Context, u *unit.Unit, rec *record.Record) {
	for _, e := range r.batchStarted {
		if err := e.hook.OnBatchStarted(ctx, u, rec); err != nil {
			r.hookError("batch_started", e.name, err)
		}
	}
}

// EmitBatchResumed notifies BatchResumed hooks.
func (r *Registry) EmitBatchResumed(ctx context.Context, u *unit.Unit, rec *record.Record) {
	for _, e := range r.batchResumed {
		if err := e.hook.OnBatchResumed(ctx, u, rec); err != nil {
			r.hookError("batch_resumed", e.name, err)
		}
	}
}

// EmitChunkCompleted notifies ChunkCompleted hooks.
func (r *Registry) EmitChunkCompleted(ctx context.Context, u *unit.Unit, processed int, cursor string) {
	for _, e := range r.chunkCompleted {
		if err := e.hook.OnChunkCompleted(ctx, u, processed, cursor); err != nil {
			r.hookError("chunk_completed", e.name, err)
		}
	}
}

// EmitBatchFinished notifies BatchFinished hooks.
func (r *Registry) EmitBatchFinished(ctx context.Context, u *unit.Unit, rec *record.Record, elapsed time.Duration) {
	for _, e := range r.batchFinished {
		if err := e.hook.OnBatchFinished(ctx, u, rec, elapsed); err != nil {
			r.hookError("batch_finished", e.name, err)
		}
	}
}

// EmitBatchFailed notifies BatchFailed hooks.
func (r *Registry) EmitBatchFailed(ctx context.Context, u *unit.Unit, failure error) {
	for _, e := range r.batchFailed {
		if err := e.hook.OnBatchFailed(ctx, u, failure); err != nil {
			r.hookError("batch_failed", e.name, err)
		}
	}
}

// EmitBatchRequeued notifies BatchRequeued hooks.
func (r *Registry) EmitBatchRequeued(ctx context.Context, u *unit.Unit, attempt int, runAt time.Time) {
	for _, e := range r.batchRequeued {
		if err := e.hook.OnBatchRequeued(ctx, u, attempt, runAt); err != nil {
			r.hookError("batch_requeued", e.name, err)
		}
	}
}

// EmitRecordSaved notifies RecordSaved hooks.
func (r *Registry) EmitRecordSaved(ctx context.Context, rec *record.Record) {
	for _, e := range r.recordSaved {
		if err := e.hook.OnRecordSaved(ctx, rec); err != nil {
			r.hookError("record_saved", e.name, err)
		}
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.hookError("shutdown", e.name, err)
		}
	}
}
