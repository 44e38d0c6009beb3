package cache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Store is a write-once key-value store for page responses.
//
// Set never replaces an existing entry: the first response stored for a key
// wins for the lifetime of the store. Implementations are not safe for use by
// several processes walking the same collection at once.
type Store interface {
	// Get returns the entry for key or ErrCacheMiss.
	Get(ctx context.Context, key CacheKey) (*Entry, error)

	// Set stores entry under key unless the key already exists.
	Set(ctx context.Context, key CacheKey, entry *Entry) error

	// Close releases the underlying resources.
	Close() error
}

// Options selects and configures a cache backend.
type Options struct {
	// Backend is one of BackendSQLite, BackendRedis or BackendMemory.
	Backend string

	// Path is the SQLite database file (sqlite backend).
	Path string

	// RedisURL is a redis:// URL (redis backend).
	RedisURL string
}

// Open creates the store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		store, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := OpenRedis(opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
