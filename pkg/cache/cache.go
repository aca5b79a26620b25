// Package cache stores computed affinity matrices and solved selections.
//
// A [Cache] is a byte-oriented key/value store with per-entry TTL. Four
// backends are provided:
//
//   - [NullCache]: never stores anything
//   - [FileCache]: one JSON file per entry under a local directory
//   - [RedisCache]: shared cache for several workers
//   - [MongoCache]: durable store with a TTL index
//
// Keys are produced by a [Keyer] from a content hash of the labeled sequence
// plus every parameter that influences the cached value, so a changed cost or
// weight variant never returns a stale result. [ScopedKeyer] prefixes keys to
// isolate tenants sharing one backend.
package cache

import (
	"context"
	"time"
)

// Default entry lifetimes.
const (
	TTLWeights   = 7 * 24 * time.Hour
	TTLSelection = 7 * 24 * time.Hour
)

// Cache is a key/value store for serialized pipeline results.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A zero ttl in Set means the entry does not expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
