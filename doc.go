// Package stride provides a resumable, checkpointed batch-execution
// engine for Go. It processes an unbounded, ordered stream of work items
// in bounded chunks, survives crashes and restarts without reprocessing
// or skipping items, and guarantees that no two executions of the same
// logical batch run concurrently.
//
// Stride is designed as a library, not a service. Import it, configure a
// store, register unit-of-work handlers as ordinary Go types, and submit
// batches.
//
// # Quick Start
//
//	svc, err := stride.New(
//	    stride.WithStore(memory.New()),
//	    stride.WithConcurrency(4),
//	)
//
// # Architecture
//
// Each subsystem (record, lock, unit) defines its own store interface.
// A single backend (Postgres, Redis, MongoDB, or Memory) implements all
// of them; the composite interface lives in the store package.
//
// Progress is durable: after every chunk the checkpoint record is saved
// in its own short round-trip, so a crash loses at most the chunk in
// flight. Item handlers must therefore be idempotent for ids that may be
// replayed after a crash between execute and checkpoint.
package stride
