package postgres

import (
	"context"
	"fmt"
	"time"

	stride "github.com/xraph/stride"
)

// AcquireLock attempts to take the lock for key on behalf of owner.
// A single atomic upsert claims the lock when it is free, expired, or
// already held by the same owner.
func (s *Store) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO stride_locks (key, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at
		WHERE stride_locks.owner = EXCLUDED.owner
		   OR stride_locks.expires_at < NOW()`,
		key, owner, until,
	)
	if err != nil {
		return false, fmt.Errorf("stride/postgres: acquire lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RenewLock extends the hold of owner on key.
func (s *Store) RenewLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)

	tag, err := s.pool.Exec(ctx, `
		UPDATE stride_locks
		SET expires_at = $3
		WHERE key = $1 AND owner = $2 AND expires_at >= NOW()`,
		key, owner, until,
	)
	if err != nil {
		return false, fmt.Errorf("stride/postgres: renew lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLock drops the lock if owner holds it.
func (s *Store) ReleaseLock(ctx context.Context, key, owner string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM stride_locks
		WHERE key = $1 AND owner = $2`,
		key, owner,
	)
	if err != nil {
		return fmt.Errorf("stride/postgres: release lock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing deleted: either the lock is gone (fine) or someone else
	// holds it.
	var current string
	err = s.pool.QueryRow(ctx,
		`SELECT owner FROM stride_locks WHERE key = $1`, key,
	).Scan(&current)
	if err != nil {
		if isNoRows(err) {
			return nil
		}
		return fmt.Errorf("stride/postgres: release lock check: %w", err)
	}
	return stride.ErrLockNotHeld
}
