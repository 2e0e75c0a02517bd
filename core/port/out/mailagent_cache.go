package out

import (
	"context"
	"time"
)

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Keys   int   `json:"keys"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is the look-aside cache used by analyzers and session state. Keys are
// namespaced "<prefix>:<user_id>:..." so FlushUser can clear one tenant.
// Implementations must be safe for concurrent use; callers treat every error
// as a miss and never fail an operation on cache trouble.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	FlushUser(ctx context.Context, userID string) error
	Stats(ctx context.Context) (CacheStats, error)
	Close() error
}
