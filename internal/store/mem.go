// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"time"

	"go.astrophena.name/scriptbot/internal/syncx"
)

// MemStore is an in-memory implementation of the Store interface.
type MemStore struct {
	ttl   time.Duration
	cache *syncx.Protected[map[string]cacheEntry]
}

// NewMemStore creates a new MemStore with the given TTL.
func NewMemStore(ctx context.Context, ttl time.Duration) *MemStore {
	s := &MemStore{
		ttl:   ttl,
		cache: syncx.Protect(make(map[string]cacheEntry)),
	}
	go sweepLoop(ctx, sweepInterval(ttl), s.sweep)
	return s
}

type cacheEntry struct {
	value        []byte
	lastAccessed time.Time
}

func (s *MemStore) sweep(context.Context) {
	s.cache.Access(func(m map[string]cacheEntry) {
		for key, entry := range m {
			if time.Since(entry.lastAccessed) > s.ttl {
				delete(m, key)
			}
		}
	})
}

// Get retrieves a value for a given key.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	s.cache.Access(func(m map[string]cacheEntry) {
		entry, ok := m[key]
		if !ok {
			return
		}
		if time.Since(entry.lastAccessed) > s.ttl {
			delete(m, key)
			return
		}
		entry.lastAccessed = time.Now()
		m[key] = entry
		// Return a copy to prevent the caller from mutating the cache.
		val = append([]byte(nil), entry.value...)
	})
	return val, nil
}

// Set stores a value for a given key.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	// Store a copy to prevent the caller from mutating the cache.
	valueCopy := append([]byte(nil), value...)
	s.cache.Access(func(m map[string]cacheEntry) {
		m[key] = cacheEntry{
			value:        valueCopy,
			lastAccessed: time.Now(),
		}
	})
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}
