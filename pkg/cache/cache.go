package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache surface the application codes against. All three
// implementations (Redis, in-memory, layered) satisfy it, so callers never
// care whether Redis is reachable.
//
// Values are stored as strings or JSON; Get fills dest the same way
// regardless of backend (a *string receives the raw payload, anything else
// is unmarshalled from JSON). An expiration <= 0 means the key never expires.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// TryLock acquires a cooperative lock: it succeeds only when the key is
	// absent, and the lock falls away on its own after ttl unless renewed
	// with Expire. Unlock releases regardless of holder.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
