package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xraph/stride/notify"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

func TestRender(t *testing.T) {
	values := map[string]string{"key": "batch-record-test", "id": "item-7", "duration": "3"}

	tests := []struct {
		tpl  string
		want string
	}{
		{"batch ${key} at ${id} after ${duration}m", "batch batch-record-test at item-7 after 3m"},
		{"no placeholders", "no placeholders"},
		{"${unknown} stays", "${unknown} stays"},
		{"unterminated ${key", "unterminated ${key"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := notify.Render(tt.tpl, values); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.tpl, got, tt.want)
		}
	}
}

// captureSink records sent messages.
type captureSink struct {
	mu       sync.Mutex
	messages []string
	channels []string
	fail     bool
}

func (c *captureSink) Send(_ context.Context, channel, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("sink down")
	}
	c.channels = append(c.channels, channel)
	c.messages = append(c.messages, message)
	return nil
}

func testUnit() *unit.Unit {
	return &unit.Unit{
		KeySuffix:       "test",
		LastProcessedID: "item-40",
		Templates: map[unit.Action]string{
			unit.ActionFinish: "batch ${key} finished at ${id} in ${duration} minutes",
		},
		Channels: map[unit.Action]string{
			unit.ActionFinish: "#batch-ops",
		},
	}
}

func TestNotify_RendersAndDelivers(t *testing.T) {
	sink := &captureSink{}
	started := time.Now().UTC().Add(-5 * time.Minute)
	n := notify.New(slog.Default(), notify.WithSink(sink))

	rec := &record.Record{Key: "batch-record-test", LastStartedAt: &started}
	n.Notify(context.Background(), unit.ActionFinish, testUnit(), rec)

	if len(sink.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sink.messages))
	}
	want := "batch batch-record-test finished at item-40 in 5 minutes"
	if sink.messages[0] != want {
		t.Errorf("message = %q, want %q", sink.messages[0], want)
	}
	if sink.channels[0] != "#batch-ops" {
		t.Errorf("channel = %q, want %q", sink.channels[0], "#batch-ops")
	}
}

func TestNotify_NoTemplateIsSilent(t *testing.T) {
	sink := &captureSink{}
	n := notify.New(slog.Default(), notify.WithSink(sink))

	n.Notify(context.Background(), unit.ActionStart, testUnit(), &record.Record{})

	if len(sink.messages) != 0 {
		t.Errorf("sent %d messages, want 0 (no template for start)", len(sink.messages))
	}
}

func TestNotify_SinkFailureDoesNotPropagate(t *testing.T) {
	sink := &captureSink{fail: true}
	n := notify.New(slog.Default(), notify.WithSink(sink))

	// Must not panic and has no error to return.
	n.Notify(context.Background(), unit.ActionFinish, testUnit(), &record.Record{})
}

func TestNotify_NilRecordUsesZeroDuration(t *testing.T) {
	sink := &captureSink{}
	n := notify.New(slog.Default(), notify.WithSink(sink))

	n.Notify(context.Background(), unit.ActionFinish, testUnit(), nil)

	if len(sink.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sink.messages))
	}
	want := "batch batch-record-test finished at item-40 in 0 minutes"
	if sink.messages[0] != want {
		t.Errorf("message = %q, want %q", sink.messages[0], want)
	}
}

func TestWebhookSink_PostsJSON(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := notify.NewWebhookSink(srv.URL)
	if err := s.Send(context.Background(), "#ops", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if body := string(gotBody); body != `{"channel":"#ops","text":"hello"}` {
		t.Errorf("posted body = %s", body)
	}
}

func TestWebhookSink_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := notify.NewWebhookSink(srv.URL)
	if err := s.Send(context.Background(), "#ops", "hello"); err == nil {
		t.Error("expected error for 502 response")
	}
}
