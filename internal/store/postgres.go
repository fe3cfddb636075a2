// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgSchema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		last_accessed TIMESTAMPTZ NOT NULL
	);`
	// Get refreshes last_accessed.
	pgGet = `UPDATE kv SET last_accessed = $3
		WHERE key = $1 AND last_accessed >= $2
		RETURNING value;`
	pgSet = `INSERT INTO kv (key, value, last_accessed)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value, last_accessed = excluded.last_accessed;`
	pgSweep = `DELETE FROM kv WHERE last_accessed < $1;`
)

// PostgresStore is a PostgreSQL implementation of the [Store] interface.
// Expiry is computed from the local clock.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewPostgresStore connects to databaseURL and creates the table if needed.
func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool, ttl: ttl, now: time.Now}
	s.sweep(ctx)
	go sweepLoop(ctx, sweepInterval(ttl), s.sweep)
	return s, nil
}

func (s *PostgresStore) sweep(ctx context.Context) {
	s.pool.Exec(ctx, pgSweep, cutoff(s.now(), s.ttl))
}

// Get retrieves a value for a given key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	now := s.now()
	var data []byte
	err := s.pool.QueryRow(ctx, pgGet, key, cutoff(now, s.ttl), now).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

// Set stores a value for a given key.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, pgSet, key, value, s.now())
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
