// Package lock provides the distributed mutual-exclusion primitive
// keyed by string. The store contract is a TTL'd try-acquire; the
// package layers blocking acquisition with backoff and background TTL
// renewal on top, so a crashed holder frees its batch after at most one
// TTL without leaving the key locked forever.
package lock

import (
	"context"
	"time"
)

// Store defines the persistence contract for distributed locks.
type Store interface {
	// AcquireLock attempts to take the lock for key on behalf of
	// owner. Returns true when acquired (or already held by the same
	// owner, which extends the TTL). The lock expires after ttl if
	// not renewed.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// RenewLock extends the hold of owner on key. Returns false when
	// the lock is held by someone else or has expired.
	RenewLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the lock if owner holds it. Releasing a lock
	// held by another owner returns stride.ErrLockNotHeld.
	ReleaseLock(ctx context.Context, key, owner string) error
}
