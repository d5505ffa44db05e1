package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/record"
)

// recordModel is the MongoDB document shape for a checkpoint record.
type recordModel struct {
	Key                string     `bson:"_id"`
	LastProcessedID    string     `bson:"last_processed_id"`
	LastProcessedCount int64      `bson:"last_processed_count"`
	LastStartedAt      *time.Time `bson:"last_started_at,omitempty"`
	LastFinishedAt     *time.Time `bson:"last_finished_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

func toRecordModel(r *record.Record) *recordModel {
	return &recordModel{
		Key:                r.Key,
		LastProcessedID:    r.LastProcessedID,
		LastProcessedCount: r.LastProcessedCount,
		LastStartedAt:      r.LastStartedAt,
		LastFinishedAt:     r.LastFinishedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) *record.Record {
	return &record.Record{
		Key:                m.Key,
		LastProcessedID:    m.LastProcessedID,
		LastProcessedCount: m.LastProcessedCount,
		LastStartedAt:      m.LastStartedAt,
		LastFinishedAt:     m.LastFinishedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// GetRecord retrieves a record by full key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	var m recordModel
	err := s.db.Collection(colRecords).FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stride.ErrRecordNotFound
		}
		return nil, fmt.Errorf("stride/mongo: get record: %w", err)
	}
	return fromRecordModel(&m), nil
}

// PutRecord persists a record, creating it if needed.
// Uses upsert so create and update share one code path.
func (s *Store) PutRecord(ctx context.Context, r *record.Record) error {
	m := toRecordModel(r)

	_, err := s.db.Collection(colRecords).UpdateOne(ctx,
		bson.M{"_id": m.Key},
		bson.M{"$set": bson.M{
			"last_processed_id":    m.LastProcessedID,
			"last_processed_count": m.LastProcessedCount,
			"last_started_at":      m.LastStartedAt,
			"last_finished_at":     m.LastFinishedAt,
			"created_at":           m.CreatedAt,
			"updated_at":           m.UpdatedAt,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("stride/mongo: put record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record by full key.
func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	res, err := s.db.Collection(colRecords).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("stride/mongo: delete record: %w", err)
	}
	if res.DeletedCount == 0 {
		return stride.ErrRecordNotFound
	}
	return nil
}

// ListRecords returns all records ordered by creation time.
func (s *Store) ListRecords(ctx context.Context) ([]*record.Record, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(colRecords).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("stride/mongo: list records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*record.Record
	for cursor.Next(ctx) {
		var m recordModel
		if decErr := cursor.Decode(&m); decErr != nil {
			return nil, fmt.Errorf("stride/mongo: decode record: %w", decErr)
		}
		records = append(records, fromRecordModel(&m))
	}
	if err = cursor.Err(); err != nil {
		return nil, fmt.Errorf("stride/mongo: iterate records: %w", err)
	}
	return records, nil
}
