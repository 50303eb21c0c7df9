package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS kv_records (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresKV persists records as JSONB rows keyed by their store key
type PostgresKV struct {
	pool *pgxpool.Pool
}

// NewPostgresKV wraps a connection pool
func NewPostgresKV(pool *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

// Migrate creates the record table if it does not exist
func (s *PostgresKV) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create kv_records: %w", err)
	}
	return nil
}

// Get retrieves a record by key
func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value
		FROM kv_records
		WHERE key = $1
	`

	var value []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	return value, nil
}

// Put upserts a record
func (s *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_records (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	return nil
}

// Create inserts a record, failing with ErrConflict if the key exists
func (s *PostgresKV) Create(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_records (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

// Delete removes a record
func (s *PostgresKV) Delete(ctx context.Context, key string) error {
	query := `
		DELETE FROM kv_records
		WHERE key = $1
	`

	result, err := s.pool.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns the records whose key starts with prefix, ordered by key
func (s *PostgresKV) List(ctx context.Context, prefix string) ([][]byte, error) {
	query := `
		SELECT value
		FROM kv_records
		WHERE starts_with(key, $1)
		ORDER BY key ASC
	`

	rows, err := s.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	values := [][]byte{}
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return values, nil
}

// Ping verifies the database connection is alive
func (s *PostgresKV) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PostgresKV) Close() {
	s.pool.Close()
}
