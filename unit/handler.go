package unit

import "context"

// Handler supplies the ordered item stream and the per-item processing
// action for one kind of batch, plus lifecycle hooks. All methods are
// invoked only while the owning batch's distributed lock is held.
//
// Execute must be idempotent for ids already processed by a prior run
// that crashed before checkpointing: a crash between Execute and the
// checkpoint save replays at most the chunk in flight.
type Handler interface {
	// Get returns the next bounded chunk of pending item ids in
	// deterministic order, restartable from any previously returned
	// id. An empty chunk signals the fixed point: the run is complete
	// for now. after is the current cursor; empty means from the
	// beginning.
	Get(ctx context.Context, after string, limit int64) ([]string, error)

	// Execute performs the side-effecting work for one item.
	Execute(ctx context.Context, itemID string) error

	// Start is called once per run, only when resuming from an empty
	// cursor.
	Start(ctx context.Context) error

	// Resume is called once per run, only when resuming from a
	// non-empty cursor.
	Resume(ctx context.Context) error

	// Finish is called once, when the run reaches its fixed point
	// having made progress.
	Finish(ctx context.Context) error
}

// Hooks is a no-op implementation of the Start/Resume/Finish lifecycle
// methods for handlers that only care about Get and Execute. Embed it
// and override what you need.
type Hooks struct{}

func (Hooks) Start(context.Context) error  { return nil }
func (Hooks) Resume(context.Context) error { return nil }
func (Hooks) Finish(context.Context) error { return nil }
