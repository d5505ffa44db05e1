// Package record defines the durable checkpoint record for a logical
// batch: last processed cursor, counters, and timestamps. The record is
// the only shared mutable state a batch owns besides its lock entry;
// both live in the external store and are mutated only while the
// batch's distributed lock is held.
package record

import "time"

// KeyPrefix prefixes every batch record key in the store.
const KeyPrefix = "batch-record-"

// LockKeyPrefix prefixes every batch lock key in the store.
const LockKeyPrefix = KeyPrefix + "lock-"

// Key returns the record key for a batch key suffix.
func Key(keySuffix string) string { return KeyPrefix + keySuffix }

// LockKey returns the lock key for a batch key suffix.
func LockKey(keySuffix string) string { return LockKeyPrefix + keySuffix }

// Record is the durable state of one logical batch.
//
// LastFinishedAt is non-nil only when LastProcessedID reflects the
// final item processed in that run; starting a new run clears it.
type Record struct {
	// Key is the full store key ("batch-record-" + suffix).
	Key string `json:"key"`

	// LastProcessedID is the cursor marking the last successfully
	// processed item. Empty means not started or reset.
	LastProcessedID string `json:"last_processed_id,omitempty"`

	// LastProcessedCount is the number of items processed during the
	// most recent run.
	LastProcessedCount int64 `json:"last_processed_count"`

	// LastStartedAt is when the current run attempt began.
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`

	// LastFinishedAt is set only when the run reaches its terminal
	// fixed point.
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reset clears the cursor and counter, the stale-run policy applied
// before resuming an abandoned run.
func (r *Record) Reset() {
	r.LastProcessedID = ""
	r.LastProcessedCount = 0
}

// Stale reports whether the record belongs to an abandoned run: it was
// started before the given deadline and never finished since. A record
// that was never started is stale by definition.
func (r *Record) Stale(deadline time.Time) bool {
	if r.LastStartedAt == nil {
		return true
	}
	return r.LastStartedAt.Before(deadline)
}

// Finished reports whether the most recent run reached its fixed point.
func (r *Record) Finished() bool { return r.LastFinishedAt != nil }
