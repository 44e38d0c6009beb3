package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps page responses in Redis.
// Keys are written without TTL; entries live until removed by an operator.
type RedisStore struct {
	redis *redis.Client
	owned bool
}

// NewRedisStore creates a store on an existing Redis client.
// The caller keeps ownership of the client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// OpenRedis connects to the Redis server at rawURL (redis://host:port/db).
func OpenRedis(rawURL string) (*RedisStore, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("redis url cannot be empty")
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	store := NewRedisStore(client)
	store.owned = true
	return store, nil
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key CacheKey) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(BackendRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(BackendRedis).Inc()
	return &entry, nil
}

// Set stores a cache entry with SETNX, so an existing page is never replaced.
func (s *RedisStore) Set(ctx context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	created, err := s.redis.SetNX(ctx, key.String(), data, 0).Result()
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis setnx: %w", err)
	}

	if created {
		CacheWrites.WithLabelValues(BackendRedis).Inc()
		CacheSize.WithLabelValues(BackendRedis).Add(float64(len(data)))
	}
	return nil
}

// Close closes the Redis client if the store opened it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.redis.Close()
}
