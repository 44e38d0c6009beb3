package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps entries for the lifetime of the process only.
// It is used when persistence is disabled and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get retrieves a cache entry by key.
func (m *MemoryStore) Get(_ context.Context, key CacheKey) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key.String()]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(BackendMemory).Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues(BackendMemory).Inc()
	return &entry, nil
}

// Set stores a copy of entry unless key is already present.
func (m *MemoryStore) Set(_ context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	if _, exists := m.entries[k]; exists {
		return nil
	}

	stored := *entry
	stored.Data = append([]byte(nil), entry.Data...)
	m.entries[k] = stored

	CacheWrites.WithLabelValues(BackendMemory).Inc()
	CacheSize.WithLabelValues(BackendMemory).Add(float64(len(stored.Data)))
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
