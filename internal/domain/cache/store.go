// internal/domain/cache/store.go
package cache

import (
	"context"
	"time"
)

// Store is the durable key/value cache the application layer reads and writes through.
// Implementations never fail loudly: a failed write reports false and a failed read is a miss.
type Store interface {
	Write(ctx context.Context, key string, value any) bool
	Read(ctx context.Context, key string, dst any) bool
	Remove(ctx context.Context, key string)
	Age(ctx context.Context, key string) (time.Duration, bool)
	IsExpired(ctx context.Context, key string, maxAge time.Duration) bool
}
