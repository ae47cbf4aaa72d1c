// internal/infra/database/postgres_cache_backend.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"offline_sync_agent/internal/infra/cachestore"

	"github.com/lib/pq" // For pq.Array
)

// PostgresCacheBackend is a fast cache backend for hosts that keep their state in PostgreSQL.
// It enforces the same per-value ceiling as the embedded backend.
type PostgresCacheBackend struct {
	db            *sql.DB
	maxValueBytes int
}

var (
	_ cachestore.Backend      = (*PostgresCacheBackend)(nil)
	_ cachestore.BatchDeleter = (*PostgresCacheBackend)(nil)
)

func NewPostgresCacheBackend(db *sql.DB, maxValueBytes int) *PostgresCacheBackend {
	return &PostgresCacheBackend{db: db, maxValueBytes: maxValueBytes}
}

// EnsureSchema creates the cache table if it does not exist yet.
func (r *PostgresCacheBackend) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS cache_entries (
                  key        TEXT PRIMARY KEY,
                  value      BYTEA NOT NULL,
                  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
              )`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("error creating cache_entries table: %w", err)
	}
	return nil
}

func (r *PostgresCacheBackend) Name() string { return "postgres" }

func (r *PostgresCacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM cache_entries WHERE key = $1`
	var value []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cachestore.ErrNotFound
		}
		return nil, fmt.Errorf("error getting cache entry: %w", err)
	}
	return value, nil
}

func (r *PostgresCacheBackend) Put(ctx context.Context, key string, value []byte) error {
	if r.maxValueBytes > 0 && len(value) > r.maxValueBytes {
		return fmt.Errorf("%w: %d > %d bytes", cachestore.ErrTooLarge, len(value), r.maxValueBytes)
	}
	query := `INSERT INTO cache_entries (key, value, updated_at)
               VALUES ($1, $2, NOW())
               ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("error upserting cache entry: %w", err)
	}
	return nil
}

func (r *PostgresCacheBackend) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("error deleting cache entry: %w", err)
	}
	return nil
}

func (r *PostgresCacheBackend) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `DELETE FROM cache_entries WHERE key = ANY($1::text[])`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(keys)); err != nil {
		return fmt.Errorf("error deleting cache entries: %w", err)
	}
	return nil
}

func (r *PostgresCacheBackend) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM cache_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("error listing cache keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning cache key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache keys: %w", err)
	}
	return keys, nil
}
