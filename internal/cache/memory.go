package cache

import (
	"context"
	"sync"
	"time"

	"buswatch/internal/tracking"
)

// MemoryETACache is the in-process fallback used when no Redis is
// configured. Entries expire lazily on read, and every write sweeps out
// expired entries so keys abandoned by a moving vehicle do not pile up.
type MemoryETACache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	etas      []tracking.ETARecord
	expiresAt time.Time
}

func NewMemoryETACache(ttl time.Duration) *MemoryETACache {
	return &MemoryETACache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryETACache) Get(_ context.Context, key string) ([]tracking.ETARecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	return entry.etas, nil
}

func (m *MemoryETACache) Set(_ context.Context, key string, etas []tracking.ETARecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{etas: etas, expiresAt: now.Add(m.ttl)}
	return nil
}
