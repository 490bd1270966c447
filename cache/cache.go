package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Lookup fields for composite keys.
const (
	FieldID        = "id"
	FieldPublicKey = "public_key"
	FieldAPIKey    = "apikey"
)

// Key is the composite cache key: entity kind, lookup field, lookup value.
type Key struct {
	Kind  string
	Field string
	Value string
}

func (k Key) String() string {
	return k.Kind + ":" + k.Field + ":" + k.Value
}

// Backend stores encoded entries with a TTL. Implementations must be safe for
// concurrent use; concurrent writes to the same key may race benignly (last
// write wins, entries are always re-derivable from the store).
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Touch slides an existing entry's expiry without rewriting it.
	Touch(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache is the read-through layer. A nil backend or Enabled=false degrades to
// direct loader calls.
type Cache struct {
	backend Backend
	enabled bool
	ttl     time.Duration

	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a Cache over backend. When enabled is false the backend is
// never consulted.
func New(backend Backend, enabled bool, ttl time.Duration) *Cache {
	return &Cache{backend: backend, enabled: enabled && backend != nil, ttl: ttl}
}

// Enabled reports whether lookups consult the backend.
func (c *Cache) Enabled() bool { return c.enabled }

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Invalidate drops the entries for the given keys. Backend errors on
// invalidation are returned so mutating flows can surface them; the entries
// expire by TTL regardless.
func (c *Cache) Invalidate(ctx context.Context, keys ...Key) error {
	if !c.enabled {
		return nil
	}
	for _, k := range keys {
		if err := c.backend.Delete(ctx, k.String()); err != nil {
			return err
		}
	}
	return nil
}

// GetOrLoad returns the cached value for key or runs loader and caches its
// result. Concurrent calls for the same key share a single loader invocation.
func GetOrLoad[T any](ctx context.Context, c *Cache, key Key, loader func(context.Context) (T, error)) (T, error) {
	var zero T

	if !c.enabled {
		return loader(ctx)
	}

	ks := key.String()
	if raw, ok, err := c.backend.Get(ctx, ks); err == nil && ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			c.hits.Add(1)
			// Sliding expiration: a hit refreshes the entry's lifetime.
			_ = c.backend.Touch(ctx, ks, c.ttl)
			return value, nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		_ = c.backend.Delete(ctx, ks)
	}
	c.misses.Add(1)

	raw, err, _ := c.group.Do(ks, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		// A Set failure only costs the caching; the loaded value is still good.
		_ = c.backend.Set(ctx, ks, encoded, c.ttl)
		return encoded, nil
	})
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal(raw.([]byte), &value); err != nil {
		return zero, err
	}
	return value, nil
}
