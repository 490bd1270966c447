package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize bounds the in-process backend when no size is given.
const DefaultMemorySize = 4096

// MemoryBackend is an in-process Backend over an expirable LRU. Entry
// lifetime is the TTL the LRU was built with; Touch re-inserts the entry to
// reset it.
type MemoryBackend struct {
	entries *lru.LRU[string, []byte]
}

// NewMemoryBackend builds a backend holding at most size entries that expire
// after ttl.
func NewMemoryBackend(size int, ttl time.Duration) *MemoryBackend {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryBackend{
		entries: lru.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.entries.Get(key)
	return value, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.entries.Add(key, value)
	return nil
}

func (m *MemoryBackend) Touch(_ context.Context, key string, _ time.Duration) error {
	if value, ok := m.entries.Get(key); ok {
		m.entries.Add(key, value)
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}
