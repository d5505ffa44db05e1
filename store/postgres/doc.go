// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED dequeue, atomic upsert lock claims, embedded
// SQL migrations.
package postgres
