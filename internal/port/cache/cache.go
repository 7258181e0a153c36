// Package cache defines the in-process cache port.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL byte cache. The engine uses it for remote workflow-status
// lists, which are fetched on every status update but change rarely.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close()
}
