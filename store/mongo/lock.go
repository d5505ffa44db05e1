package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	stride "github.com/xraph/stride"
)

// lockModel is the MongoDB document shape for a batch lock.
type lockModel struct {
	Key       string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// AcquireLock attempts to take the lock for key on behalf of owner.
// The filter only matches a free claim (same owner or expired); when
// another owner holds the lock the upsert collides on _id and the
// duplicate-key error signals a lost race.
func (s *Store) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	t := now()
	until := t.Add(ttl)

	filter := bson.M{
		"_id": key,
		"$or": []bson.M{
			{"owner": owner},
			{"expires_at": bson.M{"$lt": t}},
		},
	}
	update := bson.M{"$set": bson.M{
		"owner":      owner,
		"expires_at": until,
	}}

	_, err := s.db.Collection(colLocks).UpdateOne(ctx, filter, update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("stride/mongo: acquire lock: %w", err)
	}
	return true, nil
}

// RenewLock extends the hold of owner on key.
func (s *Store) RenewLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	t := now()

	res, err := s.db.Collection(colLocks).UpdateOne(ctx,
		bson.M{
			"_id":        key,
			"owner":      owner,
			"expires_at": bson.M{"$gte": t},
		},
		bson.M{"$set": bson.M{"expires_at": t.Add(ttl)}},
	)
	if err != nil {
		return false, fmt.Errorf("stride/mongo: renew lock: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// ReleaseLock drops the lock if owner holds it.
func (s *Store) ReleaseLock(ctx context.Context, key, owner string) error {
	res, err := s.db.Collection(colLocks).DeleteOne(ctx, bson.M{"_id": key, "owner": owner})
	if err != nil {
		return fmt.Errorf("stride/mongo: release lock: %w", err)
	}
	if res.DeletedCount > 0 {
		return nil
	}

	// Nothing deleted: either the lock is gone (fine) or someone else
	// holds it.
	var m lockModel
	err = s.db.Collection(colLocks).FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil
		}
		return fmt.Errorf("stride/mongo: release lock check: %w", err)
	}
	return stride.ErrLockNotHeld
}
