// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a key-value store backed in-memory, by SQLite or by
// PostgreSQL.
package store

import (
	"context"
	"strings"
	"time"
)

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key string, value []byte) error
	// Close closes the store and releases any resources.
	Close() error
}

// Open opens a store by its data source name:
//
//   - postgres:// or postgresql:// URLs open a [PostgresStore];
//   - file paths (optionally prefixed with file:) open a [SQLiteStore];
//   - an empty string opens a [MemStore].
//
// Keys not accessed for ttl are removed. Cleanup stops when ctx is canceled.
func Open(ctx context.Context, dsn string, ttl time.Duration) (Store, error) {
	switch {
	case dsn == "":
		return NewMemStore(ctx, ttl), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn, ttl)
	default:
		return NewSQLiteStore(ctx, dsn, ttl)
	}
}
