package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	stride "github.com/xraph/stride"
)

// AcquireLock attempts to take the lock for key on behalf of owner
// using SET NX with TTL. Re-acquisition by the same owner extends the
// TTL.
func (s *Store) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(key), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("stride/redis: acquire lock setnx: %w", err)
	}
	if ok {
		return true, nil
	}

	// Check if we already hold it.
	current, err := s.client.Get(ctx, lockKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Expired between SETNX and GET; next attempt wins it.
			return false, nil
		}
		return false, fmt.Errorf("stride/redis: acquire lock get: %w", err)
	}
	if current == owner {
		if eErr := s.client.Expire(ctx, lockKey(key), ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend lock ttl", "key", key, "error", eErr)
		}
		return true, nil
	}
	return false, nil
}

// RenewLock extends the hold of owner on key.
func (s *Store) RenewLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	current, err := s.client.Get(ctx, lockKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil // lock expired
		}
		return false, fmt.Errorf("stride/redis: renew lock get: %w", err)
	}
	if current != owner {
		return false, nil
	}

	if eErr := s.client.Expire(ctx, lockKey(key), ttl).Err(); eErr != nil {
		return false, fmt.Errorf("stride/redis: renew lock expire: %w", eErr)
	}
	return true, nil
}

// ReleaseLock drops the lock if owner holds it.
func (s *Store) ReleaseLock(ctx context.Context, key, owner string) error {
	current, err := s.client.Get(ctx, lockKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil // already expired
		}
		return fmt.Errorf("stride/redis: release lock get: %w", err)
	}
	if current != owner {
		return stride.ErrLockNotHeld
	}

	if err := s.client.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("stride/redis: release lock del: %w", err)
	}
	return nil
}
