package kv

import (
	"bytes"
	"context"
	"sync"
	"time"

	"faucet/pkg/platform/sentinel"
	"faucet/pkg/requestcontext"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. It backs local development, tests and
// the degraded path of FallbackStore. Expiry is evaluated lazily on access
// against requestcontext.Now.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(ctx, key)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return bytes.Clone(entry.value), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(ctx, key, value, ttl)
	return nil
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(ctx, key); ok {
		return false, nil
	}
	s.put(ctx, key, value, ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(ctx, key)
	switch {
	case prev == nil && ok:
		return false, nil
	case prev != nil && (!ok || !bytes.Equal(entry.value, prev)):
		return false, nil
	}
	s.put(ctx, key, next, ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, key string, prev []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(ctx, key)
	if !ok || !bytes.Equal(entry.value, prev) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of live keys.
func (s *MemoryStore) Len(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := requestcontext.Now(ctx)
	n := 0
	for _, entry := range s.entries {
		if !entry.expired(now) {
			n++
		}
	}
	return n
}

// live must be called with mu held.
func (s *MemoryStore) live(ctx context.Context, key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if entry.expired(requestcontext.Now(ctx)) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// put must be called with mu held.
func (s *MemoryStore) put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	entry := memoryEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		entry.expiresAt = requestcontext.Now(ctx).Add(ttl)
	}
	s.entries[key] = entry
}
