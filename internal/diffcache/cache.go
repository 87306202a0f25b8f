// Package diffcache caches diff texts that are expensive to produce: the full
// diff of a branch head against its parent, and the raw text of a revision's
// active diff on the review service.
package diffcache

import (
	"context"
	"sync"
	"time"
)

// Cache is a batched key/value store with per-key expiry
type Cache interface {
	// GetKeys returns the live values of the requested keys. Missing and
	// expired keys are absent from the result.
	GetKeys(ctx context.Context, keys []string) (map[string]string, error)
	// SetKey stores value under key. A zero ttl never expires.
	SetKey(ctx context.Context, key, value string, ttl time.Duration) error
}

// MemoryCache is a process-local Cache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// GetKeys implements Cache
func (m *MemoryCache) GetKeys(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		entry, ok := m.entries[key]
		if !ok {
			continue
		}
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			continue
		}
		result[key] = entry.value
	}
	return result, nil
}

// SetKey implements Cache
func (m *MemoryCache) SetKey(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}
