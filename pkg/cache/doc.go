// Package cache provides the page-response cache behind resumable exports.
//
// Every successful page of a pagination walk is stored under a key derived
// from its request parameters. A later run asking for the same parameters
// replays the stored body instead of calling the API, so an interrupted
// export resumes live fetching only at the first uncached cursor.
//
// Entries are write-once. The cache assumes the remote data behind a given
// cursor does not change between runs, and nothing in this package expires
// or deletes entries.
//
// # Backends
//
//   - SQLiteStore (default): a local database file, .cache/responses_cache.db
//   - RedisStore: a shared Redis instance, keys written with SETNX and no TTL
//   - MemoryStore: process-local, used when persistence is disabled
//
// # Basic Usage
//
//	store, err := cache.Open(cache.Options{Backend: cache.BackendSQLite})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key := cache.CacheKey{
//		Endpoint:    "/api/v3/list/",
//		QueryParams: url.Values{"pageCursor": []string{cursor}},
//	}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then store.Set(ctx, key, cache.NewEntry(body, 200))
//	}
//
// # Metrics
//
//   - readwise_cache_hits_total{backend}
//   - readwise_cache_misses_total{backend}
//   - readwise_cache_writes_total{backend}
//   - readwise_cache_size_bytes{backend}
//   - readwise_cache_errors_total{operation}
//
// None of the backends lock against a second process walking the same
// collection concurrently.
package cache
