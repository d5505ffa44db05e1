package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stride/id"
	"github.com/xraph/stride/unit"
)

// invocationModel is the MongoDB document shape for a queued
// invocation. The unit travels as its JSON wire form so the queue and
// the re-submission path share one serialization.
type invocationModel struct {
	ID         string    `bson:"_id"`
	Unit       string    `bson:"unit"`
	Attempt    int       `bson:"attempt"`
	RunAt      time.Time `bson:"run_at"`
	EnqueuedAt time.Time `bson:"enqueued_at"`
}

// PushInvocation appends an invocation to the queue.
func (s *Store) PushInvocation(ctx context.Context, inv *unit.Invocation) error {
	payload, err := json.Marshal(&inv.Unit)
	if err != nil {
		return fmt.Errorf("stride/mongo: marshal unit: %w", err)
	}

	m := &invocationModel{
		ID:         inv.ID.String(),
		Unit:       string(payload),
		Attempt:    inv.Attempt,
		RunAt:      inv.RunAt,
		EnqueuedAt: inv.EnqueuedAt,
	}
	if _, err := s.db.Collection(colInvocations).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("stride/mongo: push invocation: %w", err)
	}
	return nil
}

// DequeueInvocations atomically claims and removes up to limit due
// invocations, oldest first. Uses FindOneAndDelete for atomic claim to
// prevent double-delivery.
func (s *Store) DequeueInvocations(ctx context.Context, limit int) ([]*unit.Invocation, error) {
	var invs []*unit.Invocation

	for range limit {
		t := now()
		filter := bson.M{"run_at": bson.M{"$lte": t}}
		opts := options.FindOneAndDelete().SetSort(bson.D{{Key: "run_at", Value: 1}})

		var m invocationModel
		err := s.db.Collection(colInvocations).FindOneAndDelete(ctx, filter, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}
			return nil, fmt.Errorf("stride/mongo: dequeue invocation: %w", err)
		}

		inv := &unit.Invocation{
			Attempt:    m.Attempt,
			RunAt:      m.RunAt,
			EnqueuedAt: m.EnqueuedAt,
		}
		parsedID, parseErr := id.ParseInvocationID(m.ID)
		if parseErr != nil {
			return nil, fmt.Errorf("stride/mongo: parse invocation id: %w", parseErr)
		}
		inv.ID = parsedID
		if umErr := json.Unmarshal([]byte(m.Unit), &inv.Unit); umErr != nil {
			return nil, fmt.Errorf("stride/mongo: unmarshal unit: %w", umErr)
		}
		invs = append(invs, inv)
	}
	return invs, nil
}

// CountInvocations returns the number of queued invocations, including
// deferred ones.
func (s *Store) CountInvocations(ctx context.Context) (int64, error) {
	n, err := s.db.Collection(colInvocations).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("stride/mongo: count invocations: %w", err)
	}
	return n, nil
}
