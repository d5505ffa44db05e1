package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/id"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	// Closing again is a no-op.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Ping", func() error { return s.Ping(ctx) }},
		{"GetRecord", func() error { _, err := s.GetRecord(ctx, record.Key("x")); return err }},
		{"PutRecord", func() error { return s.PutRecord(ctx, newRecord("x", time.Now().UTC())) }},
		{"DeleteRecord", func() error { return s.DeleteRecord(ctx, record.Key("x")) }},
		{"ListRecords", func() error { _, err := s.ListRecords(ctx); return err }},
		{"AcquireLock", func() error { _, err := s.AcquireLock(ctx, "k", "o", time.Minute); return err }},
		{"RenewLock", func() error { _, err := s.RenewLock(ctx, "k", "o", time.Minute); return err }},
		{"ReleaseLock", func() error { return s.ReleaseLock(ctx, "k", "o") }},
		{"PushInvocation", func() error { return s.PushInvocation(ctx, &unit.Invocation{ID: id.NewInvocationID()}) }},
		{"DequeueInvocations", func() error { _, err := s.DequeueInvocations(ctx, 1); return err }},
		{"CountInvocations", func() error { _, err := s.CountInvocations(ctx); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, stride.ErrStoreClosed) {
				t.Fatalf("%s error = %v, want ErrStoreClosed", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Record Store tests
// ──────────────────────────────────────────────────

func newRecord(suffix string, createdAt time.Time) *record.Record {
	return &record.Record{
		Key:       record.Key(suffix),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRecordPutAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.GetRecord(ctx, record.Key("missing")); !errors.Is(err, stride.ErrRecordNotFound) {
		t.Fatalf("GetRecord(missing) error = %v, want ErrRecordNotFound", err)
	}

	r := newRecord("orders", time.Now().UTC())
	r.LastProcessedID = "item-42"
	r.LastProcessedCount = 42
	if err := s.PutRecord(ctx, r); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}

	got, err := s.GetRecord(ctx, r.Key)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got.LastProcessedID != "item-42" || got.LastProcessedCount != 42 {
		t.Errorf("got cursor %q count %d, want %q count 42", got.LastProcessedID, got.LastProcessedCount, "item-42")
	}

	// Mutating the returned copy must not affect the stored record.
	got.LastProcessedCount = 0
	again, _ := s.GetRecord(ctx, r.Key)
	if again.LastProcessedCount != 42 {
		t.Error("GetRecord returned a shared reference, want a copy")
	}
}

func TestRecordDelete(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newRecord("orders", time.Now().UTC())
	if err := s.PutRecord(ctx, r); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	if err := s.DeleteRecord(ctx, r.Key); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if err := s.DeleteRecord(ctx, r.Key); !errors.Is(err, stride.ErrRecordNotFound) {
		t.Errorf("DeleteRecord(absent) error = %v, want ErrRecordNotFound", err)
	}
}

func TestListRecordsOrdersByCreation(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, suffix := range []string{"c", "a", "b"} {
		r := newRecord(suffix, base.Add(time.Duration(i)*time.Second))
		if err := s.PutRecord(ctx, r); err != nil {
			t.Fatalf("PutRecord(%q) error = %v", suffix, err)
		}
	}

	list, err := s.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	want := []string{record.Key("c"), record.Key("a"), record.Key("b")}
	if len(list) != len(want) {
		t.Fatalf("ListRecords() returned %d records, want %d", len(list), len(want))
	}
	for i, r := range list {
		if r.Key != want[i] {
			t.Errorf("list[%d].Key = %q, want %q", i, r.Key, want[i])
		}
	}
}

// ──────────────────────────────────────────────────
// Lock Store tests
// ──────────────────────────────────────────────────

func TestLockExclusion(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	key := record.LockKey("orders")

	ok, err := s.AcquireLock(ctx, key, "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock(a) = %v, %v, want true", ok, err)
	}

	ok, err = s.AcquireLock(ctx, key, "b", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock(b) error = %v", err)
	}
	if ok {
		t.Error("AcquireLock(b) = true while held by a")
	}

	// Same owner re-acquires.
	ok, _ = s.AcquireLock(ctx, key, "a", time.Minute)
	if !ok {
		t.Error("AcquireLock(a again) = false, want true")
	}
}

func TestLockExpires(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	key := record.LockKey("orders")

	if ok, _ := s.AcquireLock(ctx, key, "a", 10*time.Millisecond); !ok {
		t.Fatal("AcquireLock(a) = false, want true")
	}
	time.Sleep(20 * time.Millisecond)

	if ok, _ := s.AcquireLock(ctx, key, "b", time.Minute); !ok {
		t.Error("AcquireLock(b) after expiry = false, want true")
	}
}

func TestLockRenewAndRelease(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	key := record.LockKey("orders")

	if ok, _ := s.AcquireLock(ctx, key, "a", time.Minute); !ok {
		t.Fatal("AcquireLock(a) = false, want true")
	}

	if ok, _ := s.RenewLock(ctx, key, "b", time.Minute); ok {
		t.Error("RenewLock(b) = true, want false")
	}
	if ok, _ := s.RenewLock(ctx, key, "a", time.Minute); !ok {
		t.Error("RenewLock(a) = false, want true")
	}

	if err := s.ReleaseLock(ctx, key, "b"); !errors.Is(err, stride.ErrLockNotHeld) {
		t.Errorf("ReleaseLock(b) error = %v, want ErrLockNotHeld", err)
	}
	if err := s.ReleaseLock(ctx, key, "a"); err != nil {
		t.Errorf("ReleaseLock(a) error = %v", err)
	}
	if err := s.ReleaseLock(ctx, key, "a"); err != nil {
		t.Errorf("ReleaseLock(a, released) error = %v, want nil", err)
	}
}

// ──────────────────────────────────────────────────
// Invocation Queue tests
// ──────────────────────────────────────────────────

func newInvocation(suffix string, runAt time.Time) *unit.Invocation {
	return &unit.Invocation{
		ID:         id.NewInvocationID(),
		Unit:       unit.Unit{KeySuffix: suffix, Handler: suffix},
		RunAt:      runAt,
		EnqueuedAt: runAt,
	}
}

func TestQueueDequeueRemovesAndOrders(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := s.PushInvocation(ctx, newInvocation("late", now.Add(-time.Second))); err != nil {
		t.Fatalf("PushInvocation() error = %v", err)
	}
	if err := s.PushInvocation(ctx, newInvocation("early", now.Add(-time.Minute))); err != nil {
		t.Fatalf("PushInvocation() error = %v", err)
	}

	got, err := s.DequeueInvocations(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueInvocations() error = %v", err)
	}
	if len(got) != 1 || got[0].Unit.KeySuffix != "early" {
		t.Fatalf("dequeued %v, want the oldest invocation", got)
	}

	// The dequeued invocation is gone.
	n, _ := s.CountInvocations(ctx)
	if n != 1 {
		t.Errorf("CountInvocations() = %d, want 1", n)
	}
}

func TestQueueDefersFutureInvocations(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.PushInvocation(ctx, newInvocation("future", time.Now().UTC().Add(time.Hour))); err != nil {
		t.Fatalf("PushInvocation() error = %v", err)
	}

	got, err := s.DequeueInvocations(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueInvocations() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("dequeued %d future invocations, want 0", len(got))
	}

	n, _ := s.CountInvocations(ctx)
	if n != 1 {
		t.Errorf("CountInvocations() = %d, want 1", n)
	}
}
