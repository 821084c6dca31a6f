// Package cache provides a small read-through cache over an in-memory or
// Redis backend. Values are stored as JSON.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// GetOrFetch returns the cached value for key, or calls fetch and stores its
// result for ttl. A backend error is treated as a miss so the cache never
// becomes a hard dependency; only fetch errors are returned. hit reports
// whether the value came from the cache.
func GetOrFetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (value T, hit bool, err error) {
	if raw, ok, getErr := c.Get(ctx, key); getErr == nil && ok {
		if json.Unmarshal(raw, &value) == nil {
			return value, true, nil
		}
	}

	value, err = fetch(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if raw, encErr := json.Marshal(value); encErr == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return value, false, nil
}

