// Package cache provides the content-addressed result cache: a canonical
// key derivation, a bounded in-process LRU+TTL store, a Redis-backed store,
// and a failover wrapper that keeps Redis outages invisible to callers.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a backend that cannot be reached. It never escapes
// the cache layer: the failover wrapper demotes to the local store instead.
var ErrUnavailable = errors.New("cache backend unavailable")

// Cache is the interface the evaluation service sees. Both backends are safe
// for concurrent use.
type Cache interface {
	// Get returns the stored value and true on a hit. Expired entries are
	// misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key for ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Backend names the implementation for capability reporting.
	Backend() string
}
