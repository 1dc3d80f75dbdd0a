// Package cache provides the key-value store behind the advocate query cache.
//
// A Store holds opaque byte values with a per-entry TTL and supports
// invalidation by key prefix. Two backends exist: an in-process sharded
// store (sturdyc) and a networked one (Redis). Cache wraps a Store with a JSON
// codec, hit/miss metrics, and the typed cache-aside helper GetOrLoad.
//
// Keys are built with Key so every key of one domain shares a namespace
// prefix, which is what DeletePrefix invalidates.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the minimal contract the cache-aside layer needs from a backend.
type Store interface {
	// Get returns the stored value and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix and reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ErrInvalidTTL is returned by Set when ttl is not positive.
var ErrInvalidTTL = errors.New("cache: ttl must be greater than 0")

// KeySeparator delimits the segments of a cache key.
const KeySeparator = ":"

// Key joins a namespace and segments into a cache key. Empty segments are kept
// so that positional meaning never shifts.
func Key(namespace string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, namespace)
	parts = append(parts, segments...)
	return strings.Join(parts, KeySeparator)
}

// Prefix returns the invalidation prefix of a namespace.
func Prefix(namespace string) string {
	return namespace + KeySeparator
}
