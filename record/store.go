package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/stride"
)

// Store defines the persistence contract for batch records. Each
// operation is its own short unit of durable work; callers hold the
// batch's distributed lock across mutations.
type Store interface {
	// GetRecord retrieves a record by full key.
	// Returns stride.ErrRecordNotFound when absent.
	GetRecord(ctx context.Context, key string) (*Record, error)

	// PutRecord persists a record atomically, creating it if needed.
	PutRecord(ctx context.Context, r *Record) error

	// DeleteRecord removes a record by full key. Deleting an absent
	// record returns stride.ErrRecordNotFound.
	DeleteRecord(ctx context.Context, key string) error

	// ListRecords returns all batch records, ordered by creation time.
	// Used by housekeeping; the working set of checkpoint records is
	// small (one per logical batch).
	ListRecords(ctx context.Context) ([]*Record, error)
}

// LoadOrInit fetches the record for key, creating a zero-valued one if
// absent. It never returns nil alongside a nil error: the engine must
// tolerate the record having been deleted by housekeeping at any time.
func LoadOrInit(ctx context.Context, s Store, key string, now time.Time) (*Record, error) {
	r, err := s.GetRecord(ctx, key)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, stride.ErrRecordNotFound) {
		return nil, fmt.Errorf("stride/record: load %q: %w", key, err)
	}

	r = &Record{Key: key, CreatedAt: now, UpdatedAt: now}
	if putErr := s.PutRecord(ctx, r); putErr != nil {
		return nil, fmt.Errorf("stride/record: init %q: %w", key, putErr)
	}
	return r, nil
}

// ResetIfExpired applies the stale-run policy: when the record was
// never started, has no deadline, or was started before the deadline,
// the cursor and counter are cleared so the next run starts from
// scratch rather than accumulating progress from an abandoned run.
// Reports whether a reset happened.
func ResetIfExpired(r *Record, deadline *time.Time) bool {
	if r.LastStartedAt == nil || deadline == nil || r.LastStartedAt.Before(*deadline) {
		r.Reset()
		return true
	}
	return false
}

// Save persists the record, stamping UpdatedAt.
func Save(ctx context.Context, s Store, r *Record, now time.Time) error {
	r.UpdatedAt = now
	if err := s.PutRecord(ctx, r); err != nil {
		return fmt.Errorf("stride/record: save %q: %w", r.Key, err)
	}
	return nil
}
