// Package cache defines a byte-oriented cache port.
package cache

import (
	"context"
	"time"
)

// Cache is a get/set/delete byte cache. Implementations may evict at will;
// callers must treat every Get as best-effort.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
