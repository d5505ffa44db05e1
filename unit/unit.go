// Package unit defines the batch unit-of-work: the pluggable definition
// of how to enumerate and process items for one batch key, the registry
// that resolves handler names to implementations, and the serialized
// invocation that travels over the re-dispatch queue.
package unit

import (
	"time"

	"github.com/xraph/stride/record"
)

// Action tags a batch lifecycle milestone for message templates and
// notification channels.
type Action string

const (
	ActionGet     Action = "get"
	ActionExecute Action = "execute"
	ActionStart   Action = "start"
	ActionResume  Action = "resume"
	ActionFinish  Action = "finish"
	ActionFailure Action = "failure"
)

// Unit describes one logical batch: which handler processes it, how
// large its chunks are, how long a single run may span, and the
// operator-supplied notification templates. A Unit is supplied by the
// caller per invocation and serialized onto the queue when a failed run
// is re-submitted; only its derived checkpoint record is persisted by
// the engine.
type Unit struct {
	// KeySuffix identifies the logical batch; the checkpoint record
	// key is "batch-record-" + KeySuffix.
	KeySuffix string `json:"key_suffix"`

	// Handler is the registry name of the Handler implementation.
	Handler string `json:"handler"`

	// ChunkSize bounds how many item ids one Get call may return.
	ChunkSize int64 `json:"chunk_size"`

	// Expiration is the maximum wall-clock span one run may occupy
	// before it is treated as not in time. Zero means every resumption
	// starts from a reset cursor.
	Expiration time.Duration `json:"expiration"`

	// Templates maps actions to notification message templates with
	// ${key}, ${id} and ${duration} placeholders. Actions without a
	// template emit nothing.
	Templates map[Action]string `json:"templates,omitempty"`

	// Channels maps actions to notification sink channels. A template
	// without a channel is logged only.
	Channels map[Action]string `json:"channels,omitempty"`

	// LastProcessedID carries the current cursor across chunk calls
	// within one invocation. The checkpoint record is authoritative;
	// the engine sets this before each chunk.
	LastProcessedID string `json:"last_processed_id,omitempty"`
}

// Key returns the full checkpoint record key for this unit.
func (u *Unit) Key() string { return record.Key(u.KeySuffix) }

// LockKey returns the full lock key for this unit.
func (u *Unit) LockKey() string { return record.LockKey(u.KeySuffix) }

// Deadline returns the expiration deadline for the current run: the
// instant before which a started run counts as stale. A zero Expiration
// yields nil, which the stale-reset policy treats as "always reset".
func (u *Unit) Deadline(now time.Time) *time.Time {
	if u.Expiration <= 0 {
		return nil
	}
	d := now.Add(-u.Expiration)
	return &d
}

// InTime reports whether a run started at startedAt is still within its
// allowed span at now.
func (u *Unit) InTime(startedAt, now time.Time) bool {
	if u.Expiration <= 0 {
		return true
	}
	return now.Before(startedAt.Add(u.Expiration))
}

// Template returns the message template for an action, if any.
func (u *Unit) Template(a Action) (string, bool) {
	t, ok := u.Templates[a]
	return t, ok && t != ""
}

// Channel returns the notification channel for an action, if any.
func (u *Unit) Channel(a Action) (string, bool) {
	c, ok := u.Channels[a]
	return c, ok && c != ""
}
