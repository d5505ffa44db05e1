package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/lock"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ record.Store = (*Store)(nil)
	_ lock.Store   = (*Store)(nil)
	_ unit.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	closed  bool
	records map[string]*record.Record
	locks   map[string]held
	queue   []*unit.Invocation
}

type held struct {
	owner string
	until time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*record.Record),
		locks:   make(map[string]held),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping succeeds while the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return stride.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Closing is idempotent; subsequent
// operations fail with stride.ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Record Store
// ──────────────────────────────────────────────────

// GetRecord retrieves a record by full key.
func (m *Store) GetRecord(_ context.Context, key string) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, stride.ErrStoreClosed
	}
	r, ok := m.records[key]
	if !ok {
		return nil, stride.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

// PutRecord persists a record, creating it if needed.
func (m *Store) PutRecord(_ context.Context, r *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return stride.ErrStoreClosed
	}
	cp := *r
	m.records[r.Key] = &cp
	return nil
}

// DeleteRecord removes a record by full key.
func (m *Store) DeleteRecord(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return stride.ErrStoreClosed
	}
	if _, ok := m.records[key]; !ok {
		return stride.ErrRecordNotFound
	}
	delete(m.records, key)
	return nil
}

// ListRecords returns all records ordered by creation time.
func (m *Store) ListRecords(_ context.Context) ([]*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, stride.ErrStoreClosed
	}
	out := make([]*record.Record, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Lock Store
// ──────────────────────────────────────────────────

// AcquireLock attempts to take the lock for key on behalf of owner.
func (m *Store) AcquireLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, stride.ErrStoreClosed
	}
	now := time.Now().UTC()
	h, ok := m.locks[key]
	if ok && h.owner != owner && h.until.After(now) {
		return false, nil
	}
	m.locks[key] = held{owner: owner, until: now.Add(ttl)}
	return true, nil
}

// RenewLock extends the hold of owner on key.
func (m *Store) RenewLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, stride.ErrStoreClosed
	}
	now := time.Now().UTC()
	h, ok := m.locks[key]
	if !ok || h.owner != owner || !h.until.After(now) {
		return false, nil
	}
	m.locks[key] = held{owner: owner, until: now.Add(ttl)}
	return true, nil
}

// ReleaseLock drops the lock if owner holds it.
func (m *Store) ReleaseLock(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return stride.ErrStoreClosed
	}
	h, ok := m.locks[key]
	if !ok {
		return nil
	}
	if h.owner != owner {
		return stride.ErrLockNotHeld
	}
	delete(m.locks, key)
	return nil
}

// ──────────────────────────────────────────────────
// Invocation Queue
// ──────────────────────────────────────────────────

// PushInvocation appends an invocation to the queue.
func (m *Store) PushInvocation(_ context.Context, inv *unit.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return stride.ErrStoreClosed
	}
	cp := *inv
	m.queue = append(m.queue, &cp)
	return nil
}

// DequeueInvocations atomically claims and removes up to limit due
// invocations, oldest first.
func (m *Store) DequeueInvocations(_ context.Context, limit int) ([]*unit.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, stride.ErrStoreClosed
	}
	now := time.Now().UTC()

	sort.SliceStable(m.queue, func(i, j int) bool {
		return m.queue[i].RunAt.Before(m.queue[j].RunAt)
	})

	var out []*unit.Invocation
	var rest []*unit.Invocation
	for _, inv := range m.queue {
		if len(out) < limit && !inv.RunAt.After(now) {
			out = append(out, inv)
			continue
		}
		rest = append(rest, inv)
	}
	m.queue = rest
	return out, nil
}

// CountInvocations returns the number of queued invocations.
func (m *Store) CountInvocations(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, stride.ErrStoreClosed
	}
	return int64(len(m.queue)), nil
}
