// Package cache provides the byte-oriented cache used for catalog snapshots.
//
// Three backends implement [Cache]:
//   - [FileCache]: JSON entry files under the store's cache directory (default)
//   - [RedisCache]: a shared Redis instance, for machines that share one catalog
//   - [Disabled]: never stores anything (cache.backend = "none")
//
// Entries carry a TTL; expired entries read as misses.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque byte slices under string keys.
type Cache interface {
	// Get returns the value for key. The bool reports whether the key was
	// present and fresh; a miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Open creates the cache for the named backend. dir is used by the file
// backend and redisURL by the redis backend. An empty backend selects the
// file backend.
func Open(ctx context.Context, backend, dir, redisURL string) (Cache, error) {
	switch backend {
	case "", BackendFile:
		c, err := NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return NewDisabled("cache.backend is none"), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
