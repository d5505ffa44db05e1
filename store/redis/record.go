package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/record"
)

// GetRecord retrieves a record by full key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	vals, err := s.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("stride/redis: get record: %w", err)
	}
	if len(vals) == 0 {
		return nil, stride.ErrRecordNotFound
	}
	return mapToRecord(vals)
}

// PutRecord persists a record, creating it if needed.
func (s *Store) PutRecord(ctx context.Context, r *record.Record) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey(r.Key))
	pipe.HSet(ctx, recordKey(r.Key), recordToMap(r))
	pipe.SAdd(ctx, recordKeysKey, r.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stride/redis: put record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record by full key.
func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	exists, err := s.client.Exists(ctx, recordKey(key)).Result()
	if err != nil {
		return fmt.Errorf("stride/redis: delete record exists: %w", err)
	}
	if exists == 0 {
		return stride.ErrRecordNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey(key))
	pipe.SRem(ctx, recordKeysKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stride/redis: delete record: %w", err)
	}
	return nil
}

// ListRecords returns all records ordered by creation time.
func (s *Store) ListRecords(ctx context.Context) ([]*record.Record, error) {
	keys, err := s.client.SMembers(ctx, recordKeysKey).Result()
	if err != nil {
		return nil, fmt.Errorf("stride/redis: list records: %w", err)
	}

	records := make([]*record.Record, 0, len(keys))
	for _, key := range keys {
		vals, getErr := s.client.HGetAll(ctx, recordKey(key)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToRecord(vals)
		if convErr != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// ── helpers ──

func recordToMap(r *record.Record) map[string]interface{} {
	m := map[string]interface{}{
		"key":                  r.Key,
		"last_processed_id":    r.LastProcessedID,
		"last_processed_count": strconv.FormatInt(r.LastProcessedCount, 10),
		"created_at":           r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":           r.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.LastStartedAt != nil {
		m["last_started_at"] = r.LastStartedAt.Format(time.RFC3339Nano)
	}
	if r.LastFinishedAt != nil {
		m["last_finished_at"] = r.LastFinishedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToRecord(m map[string]string) (*record.Record, error) {
	if m["key"] == "" {
		return nil, errors.New("stride/redis: record hash missing key")
	}

	count, _ := strconv.ParseInt(m["last_processed_count"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])   //nolint:errcheck // best-effort parse from trusted Redis data

	r := &record.Record{
		Key:                m["key"],
		LastProcessedID:    m["last_processed_id"],
		LastProcessedCount: count,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}

	if v := m["last_started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.LastStartedAt = &t
	}
	if v := m["last_finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.LastFinishedAt = &t
	}
	return r, nil
}
