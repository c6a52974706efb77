package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local [Store] for embedders that run without
// Redis. Entries expire lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrMiss
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, entry := range s.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of live entries, for introspection.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
