// Package store provides pooled access to the durable Postgres tier.
// Each operation borrows one pool slot for its full duration; per-operation
// failures are reported to the caller and never invalidate the pool or
// other slots.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no row exists for a key. It is a normal
// outcome, distinct from a transport or query failure.
var ErrNotFound = errors.New("store: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store issues parameterized key-value operations against connections
// borrowed from a Pool. created_at exists for diagnostics only and is
// never read back.
type Store struct {
	pool *Pool
}

// Open builds the connection pool and bootstraps the schema. Any failure
// here is fatal to startup: the pool is torn down and an error returned.
func Open(ctx context.Context, dsn string, poolSize int) (*Store, error) {
	pool, err := NewPool(ctx, dsn, poolSize)
	if err != nil {
		return nil, err
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		_ = pool.Close(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	sl := s.pool.acquire()
	defer sl.release()

	if _, err := sl.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Get performs a parameterized point lookup. Returns ErrNotFound when no
// row exists for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	sl := s.pool.acquire()
	defer sl.release()

	var value []byte
	err := sl.conn.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}
	return value, nil
}

// Put upserts the value for key. Repeating the same put yields the same
// final state.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	sl := s.pool.acquire()
	defer sl.release()

	_, err := sl.conn.Exec(ctx, `
		INSERT INTO kv_store (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	return nil
}

// Delete removes the row for key. Returns ErrNotFound when no row matched,
// distinct from a transport error.
func (s *Store) Delete(ctx context.Context, key string) error {
	sl := s.pool.acquire()
	defer sl.release()

	ct, err := sl.conn.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies connectivity on one pool connection.
func (s *Store) Ping(ctx context.Context) error {
	sl := s.pool.acquire()
	defer sl.release()
	return sl.conn.Ping(ctx)
}

// PoolSize returns the number of connections in the underlying pool.
func (s *Store) PoolSize() int {
	return s.pool.Size()
}

// Close tears down the connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.pool.Close(ctx)
}
