// Package cache is the read-through entity cache in front of the store.
// Lookups are keyed by composite (kind, field, value) keys; values are stored
// JSON-encoded in a pluggable backend: an in-process expirable LRU or Redis.
//
// Semantics: when disabled, every GetOrLoad call invokes the loader directly.
// When enabled, a hit returns the cached value and slides its expiry; a miss
// runs the loader once per key (concurrent misses are deduplicated) and
// stores the result with the configured TTL. Loader failures, not-found
// included, are never cached, so a miss always retries the store on the
// next call. Mutating operations invalidate the affected keys rather than
// waiting out the TTL.
package cache
