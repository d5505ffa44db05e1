package unit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/stride"
	"github.com/xraph/stride/unit"
)

type nopHandler struct{ unit.Hooks }

func (nopHandler) Get(context.Context, string, int64) ([]string, error) { return nil, nil }
func (nopHandler) Execute(context.Context, string) error                { return nil }

func TestRegistry_ResolveRegistered(t *testing.T) {
	r := unit.NewRegistry()
	r.Register("orders", nopHandler{})

	h, err := r.Resolve("orders")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h == nil {
		t.Fatal("Resolve returned nil handler")
	}
}

func TestRegistry_MissIsIntegrationFailure(t *testing.T) {
	r := unit.NewRegistry()

	_, err := r.Resolve("ghost")
	if err == nil {
		t.Fatal("expected error for unregistered handler")
	}
	if !errors.Is(err, stride.ErrHandlerNotFound) {
		t.Errorf("error = %v, want wrapping stride.ErrHandlerNotFound", err)
	}
}

func TestUnit_Keys(t *testing.T) {
	u := &unit.Unit{KeySuffix: "test"}

	if got := u.Key(); got != "batch-record-test" {
		t.Errorf("Key() = %q, want %q", got, "batch-record-test")
	}
	if got := u.LockKey(); got != "batch-record-lock-test" {
		t.Errorf("LockKey() = %q, want %q", got, "batch-record-lock-test")
	}
}

func TestUnit_Deadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	u := &unit.Unit{Expiration: time.Hour}
	d := u.Deadline(now)
	if d == nil {
		t.Fatal("Deadline() = nil, want non-nil")
	}
	if want := now.Add(-time.Hour); !d.Equal(want) {
		t.Errorf("Deadline() = %v, want %v", d, want)
	}

	// Zero expiration means no deadline: the stale policy always resets.
	u = &unit.Unit{}
	if u.Deadline(now) != nil {
		t.Error("Deadline() with zero expiration should be nil")
	}
}

func TestUnit_InTime(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	u := &unit.Unit{Expiration: time.Minute}

	if !u.InTime(start, start.Add(30*time.Second)) {
		t.Error("run within its span should be in time")
	}
	if u.InTime(start, start.Add(2*time.Minute)) {
		t.Error("run past its span should be out of time")
	}
	if !(&unit.Unit{}).InTime(start, start.Add(100*time.Hour)) {
		t.Error("zero expiration should never run out of time")
	}
}

func TestUnit_TemplateAndChannel(t *testing.T) {
	u := &unit.Unit{
		Templates: map[unit.Action]string{unit.ActionStart: "batch ${key} started"},
		Channels:  map[unit.Action]string{unit.ActionStart: "#ops"},
	}

	if tpl, ok := u.Template(unit.ActionStart); !ok || tpl != "batch ${key} started" {
		t.Errorf("Template(start) = %q, %v", tpl, ok)
	}
	if _, ok := u.Template(unit.ActionFinish); ok {
		t.Error("Template(finish) should be absent")
	}
	if ch, ok := u.Channel(unit.ActionStart); !ok || ch != "#ops" {
		t.Errorf("Channel(start) = %q, %v", ch, ok)
	}
}
