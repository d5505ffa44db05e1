// Package notify renders templated milestone messages and forwards them
// to a sink. Notification is best-effort: failures are logged locally
// and never abort the batch.
package notify

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// Notifier emits milestone notifications for batch lifecycle actions.
type Notifier struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSink sets the delivery sink. Without one, rendered messages are
// only logged.
func WithSink(s Sink) Option {
	return func(n *Notifier) { n.sink = s }
}

// WithClock overrides the time source, used to compute run duration.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New creates a Notifier.
func New(logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify renders the unit's template for the given action, if any, and
// forwards the message to the action's channel. The rendered text
// substitutes ${key}, ${id} and ${duration} (whole minutes since the
// run started). All errors are swallowed and logged.
func (n *Notifier) Notify(ctx context.Context, action unit.Action, u *unit.Unit, rec *record.Record) {
	tpl, ok := u.Template(action)
	if !ok {
		return
	}

	var minutes int64
	if rec != nil && rec.LastStartedAt != nil {
		minutes = int64(n.now().Sub(*rec.LastStartedAt) / time.Minute)
	}

	msg := Render(tpl, map[string]string{
		"key":      u.Key(),
		"id":       u.LastProcessedID,
		"duration": strconv.FormatInt(minutes, 10),
	})
	if msg == "" {
		return
	}

	n.logger.Info(msg,
		slog.String("batch_key", u.Key()),
		slog.String("action", string(action)),
	)

	channel, ok := u.Channel(action)
	if !ok || n.sink == nil {
		return
	}

	if err := n.sink.Send(ctx, channel, msg); err != nil {
		n.logger.Error("batch milestone could not be delivered",
			slog.String("batch_key", u.Key()),
			slog.String("action", string(action)),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// Render substitutes ${name} placeholders in tpl from values. Unknown
// placeholders are left intact so malformed templates stay visible in
// the delivered text instead of failing the run.
func Render(tpl string, values map[string]string) string {
	var b strings.Builder
	b.Grow(len(tpl))

	for {
		start := strings.Index(tpl, "${")
		if start < 0 {
			b.WriteString(tpl)
			return b.String()
		}
		end := strings.Index(tpl[start:], "}")
		if end < 0 {
			b.WriteString(tpl)
			return b.String()
		}
		end += start

		b.WriteString(tpl[:start])
		name := tpl[start+2 : end]
		if v, ok := values[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(tpl[start : end+1])
		}
		tpl = tpl[end+1:]
	}
}
