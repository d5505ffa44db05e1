package retry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/backoff"
	"github.com/xraph/stride/retry"
	"github.com/xraph/stride/unit"
)

type captureStore struct {
	pushed []*unit.Invocation
	err    error
}

func (s *captureStore) PushInvocation(_ context.Context, inv *unit.Invocation) error {
	if s.err != nil {
		return s.err
	}
	s.pushed = append(s.pushed, inv)
	return nil
}

func (s *captureStore) DequeueInvocations(context.Context, int) ([]*unit.Invocation, error) {
	return nil, nil
}

func (s *captureStore) CountInvocations(context.Context) (int64, error) {
	return int64(len(s.pushed)), nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitFirstAttemptIsImmediate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &captureStore{}
	d := retry.New(store, discard(),
		retry.WithStrategy(backoff.Constant(time.Minute)),
		retry.WithClock(func() time.Time { return now }),
	)

	u := &unit.Unit{KeySuffix: "orders", Handler: "orders"}
	runAt, err := d.Submit(context.Background(), u, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !runAt.Equal(now) {
		t.Errorf("runAt = %v, want %v", runAt, now)
	}
	if len(store.pushed) != 1 {
		t.Fatalf("pushed %d invocations, want 1", len(store.pushed))
	}
	inv := store.pushed[0]
	if inv.Attempt != 0 {
		t.Errorf("Attempt = %d, want 0", inv.Attempt)
	}
	if inv.Unit.KeySuffix != "orders" {
		t.Errorf("Unit.KeySuffix = %q, want %q", inv.Unit.KeySuffix, "orders")
	}
	if inv.ID.IsNil() {
		t.Error("invocation ID is nil")
	}
}

func TestSubmitRetryAttemptIsDelayed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &captureStore{}
	d := retry.New(store, discard(),
		retry.WithStrategy(backoff.Constant(time.Minute)),
		retry.WithClock(func() time.Time { return now }),
	)

	runAt, err := d.Submit(context.Background(), &unit.Unit{KeySuffix: "x"}, 3)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if want := now.Add(time.Minute); !runAt.Equal(want) {
		t.Errorf("runAt = %v, want %v", runAt, want)
	}
	if got := store.pushed[0].Attempt; got != 3 {
		t.Errorf("Attempt = %d, want 3", got)
	}
}

func TestSubmitBoundsAttempts(t *testing.T) {
	store := &captureStore{}
	d := retry.New(store, discard(), retry.WithMaxAttempts(2))

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := d.Submit(context.Background(), &unit.Unit{KeySuffix: "x"}, attempt); err != nil {
			t.Fatalf("Submit(attempt=%d) error = %v", attempt, err)
		}
	}

	_, err := d.Submit(context.Background(), &unit.Unit{KeySuffix: "x"}, 3)
	if !errors.Is(err, stride.ErrMaxAttemptsExceeded) {
		t.Errorf("Submit(attempt=3) error = %v, want ErrMaxAttemptsExceeded", err)
	}
	if len(store.pushed) != 2 {
		t.Errorf("pushed %d invocations, want 2", len(store.pushed))
	}
}

func TestSubmitUnboundedByDefault(t *testing.T) {
	store := &captureStore{}
	d := retry.New(store, discard())

	if _, err := d.Submit(context.Background(), &unit.Unit{KeySuffix: "x"}, 10_000); err != nil {
		t.Errorf("Submit(attempt=10000) error = %v, want nil", err)
	}
}

func TestSubmitWrapsStoreError(t *testing.T) {
	boom := errors.New("queue unavailable")
	d := retry.New(&captureStore{err: boom}, discard())

	_, err := d.Submit(context.Background(), &unit.Unit{KeySuffix: "x"}, 1)
	if !errors.Is(err, boom) {
		t.Errorf("Submit() error = %v, want wrapped %v", err, boom)
	}
}
