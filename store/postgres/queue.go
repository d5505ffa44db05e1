package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/stride/id"
	"github.com/xraph/stride/unit"
)

// PushInvocation appends an invocation to the queue.
func (s *Store) PushInvocation(ctx context.Context, inv *unit.Invocation) error {
	payload, err := json.Marshal(&inv.Unit)
	if err != nil {
		return fmt.Errorf("stride/postgres: marshal unit: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO stride_invocations (id, unit, attempt, run_at, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)`,
		inv.ID.String(), payload, inv.Attempt, inv.RunAt, inv.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("stride/postgres: push invocation: %w", err)
	}
	return nil
}

// DequeueInvocations atomically claims and removes up to limit due
// invocations, oldest first. SKIP LOCKED keeps concurrent workers from
// claiming the same row.
func (s *Store) DequeueInvocations(ctx context.Context, limit int) ([]*unit.Invocation, error) {
	rows, err := s.pool.Query(ctx, `
		WITH dequeued AS (
			DELETE FROM stride_invocations
			WHERE id IN (
				SELECT id FROM stride_invocations
				WHERE run_at <= NOW()
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $1
			)
			RETURNING id, unit, attempt, run_at, enqueued_at
		)
		SELECT * FROM dequeued ORDER BY run_at ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("stride/postgres: dequeue invocations: %w", err)
	}
	defer rows.Close()

	var invs []*unit.Invocation
	for rows.Next() {
		var (
			rawID   string
			payload []byte
		)
		inv := &unit.Invocation{}
		if scanErr := rows.Scan(&rawID, &payload, &inv.Attempt, &inv.RunAt, &inv.EnqueuedAt); scanErr != nil {
			return nil, fmt.Errorf("stride/postgres: scan invocation: %w", scanErr)
		}
		parsedID, parseErr := id.ParseInvocationID(rawID)
		if parseErr != nil {
			return nil, fmt.Errorf("stride/postgres: parse invocation id: %w", parseErr)
		}
		inv.ID = parsedID
		if umErr := json.Unmarshal(payload, &inv.Unit); umErr != nil {
			return nil, fmt.Errorf("stride/postgres: unmarshal unit: %w", umErr)
		}
		invs = append(invs, inv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("stride/postgres: iterate invocations: %w", err)
	}
	return invs, nil
}

// CountInvocations returns the number of queued invocations, including
// deferred ones.
func (s *Store) CountInvocations(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stride_invocations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("stride/postgres: count invocations: %w", err)
	}
	return n, nil
}
