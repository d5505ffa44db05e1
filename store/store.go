// Package store defines the aggregate persistence interface. Each
// subsystem (record, lock, unit) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, Redis, Mongo,
// and Memory.
package store

import (
	"context"

	"github.com/xraph/stride/lock"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, mongo, memory) implements all of them.
type Store interface {
	record.Store
	lock.Store
	unit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
