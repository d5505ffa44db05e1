package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/stride/unit"
)

// PushInvocation appends a serialized invocation to the queue sorted
// set, scored by its due time.
func (s *Store) PushInvocation(ctx context.Context, inv *unit.Invocation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("stride/redis: marshal invocation: %w", err)
	}

	score := float64(inv.RunAt.UnixMilli())
	if err := s.client.ZAdd(ctx, queueKey, goredis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("stride/redis: push invocation: %w", err)
	}
	return nil
}

// DequeueInvocations claims up to limit due invocations, oldest first.
// ZRem is the claim: a member another worker already removed is
// skipped, so each invocation is delivered at most once.
func (s *Store) DequeueInvocations(ctx context.Context, limit int) ([]*unit.Invocation, error) {
	now := time.Now().UTC()

	members, err := s.client.ZRangeByScore(ctx, queueKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stride/redis: dequeue zrangebyscore: %w", err)
	}

	var invs []*unit.Invocation
	for _, member := range members {
		removed, remErr := s.client.ZRem(ctx, queueKey, member).Result()
		if remErr != nil {
			return nil, fmt.Errorf("stride/redis: dequeue zrem: %w", remErr)
		}
		if removed == 0 {
			continue // claimed by another worker
		}

		var inv unit.Invocation
		if umErr := json.Unmarshal([]byte(member), &inv); umErr != nil {
			s.logger.Warn("dropping malformed invocation", "error", umErr)
			continue
		}
		invs = append(invs, &inv)
	}
	return invs, nil
}

// CountInvocations returns the number of queued invocations, including
// deferred ones.
func (s *Store) CountInvocations(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("stride/redis: count invocations: %w", err)
	}
	return n, nil
}
