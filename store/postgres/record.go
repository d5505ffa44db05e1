package postgres

import (
	"context"
	"fmt"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/record"
)

// GetRecord retrieves a record by full key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			key, last_processed_id, last_processed_count,
			last_started_at, last_finished_at, created_at, updated_at
		FROM stride_records
		WHERE key = $1`,
		key,
	)

	r := &record.Record{}
	err := row.Scan(
		&r.Key, &r.LastProcessedID, &r.LastProcessedCount,
		&r.LastStartedAt, &r.LastFinishedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, stride.ErrRecordNotFound
		}
		return nil, fmt.Errorf("stride/postgres: get record: %w", err)
	}
	return r, nil
}

// PutRecord persists a record, creating it if needed.
func (s *Store) PutRecord(ctx context.Context, r *record.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stride_records (
			key, last_processed_id, last_processed_count,
			last_started_at, last_finished_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			last_processed_id = EXCLUDED.last_processed_id,
			last_processed_count = EXCLUDED.last_processed_count,
			last_started_at = EXCLUDED.last_started_at,
			last_finished_at = EXCLUDED.last_finished_at,
			updated_at = EXCLUDED.updated_at`,
		r.Key, r.LastProcessedID, r.LastProcessedCount,
		r.LastStartedAt, r.LastFinishedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stride/postgres: put record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record by full key.
func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stride_records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("stride/postgres: delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stride.ErrRecordNotFound
	}
	return nil
}

// ListRecords returns all records ordered by creation time.
func (s *Store) ListRecords(ctx context.Context) ([]*record.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			key, last_processed_id, last_processed_count,
			last_started_at, last_finished_at, created_at, updated_at
		FROM stride_records
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("stride/postgres: list records: %w", err)
	}
	defer rows.Close()

	var records []*record.Record
	for rows.Next() {
		r := &record.Record{}
		scanErr := rows.Scan(
			&r.Key, &r.LastProcessedID, &r.LastProcessedCount,
			&r.LastStartedAt, &r.LastFinishedAt, &r.CreatedAt, &r.UpdatedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("stride/postgres: scan record: %w", scanErr)
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("stride/postgres: iterate records: %w", err)
	}
	return records, nil
}
