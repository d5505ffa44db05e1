package unit

import (
	"context"
	"time"

	"github.com/xraph/stride/id"
)

// QueueName is the single well-known channel carrying serialized
// complete-execution invocations.
const QueueName = "batch-execute"

// Invocation is one queued request to run a complete execution for a
// unit. Dequeue removes the invocation: durability of progress comes
// from the checkpoint record and failure-triggered re-submission, not
// from message redelivery.
type Invocation struct {
	ID      id.InvocationID `json:"id"`
	Unit    Unit            `json:"unit"`
	Attempt int             `json:"attempt"`

	// RunAt defers consumption, used for backoff between retries.
	RunAt      time.Time `json:"run_at"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Store defines the persistence contract for the invocation queue.
type Store interface {
	// PushInvocation appends an invocation to the queue.
	PushInvocation(ctx context.Context, inv *Invocation) error

	// DequeueInvocations atomically claims and removes up to limit
	// invocations whose RunAt is due, oldest first.
	DequeueInvocations(ctx context.Context, limit int) ([]*Invocation, error)

	// CountInvocations returns the number of queued invocations,
	// including deferred ones.
	CountInvocations(ctx context.Context) (int64, error)
}
