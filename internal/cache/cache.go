package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get for absent or expired keys.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps store backend failures. The planner treats it
	// as a signal to resolve directly, bypassing the cache.
	ErrUnavailable = errors.New("cache unavailable")
)

// Store is the key-value surface the planner and invalidator require.
// Implementations must make Get/Set/DeleteMany atomic per key; no
// cross-key transactional guarantees are needed because plans are
// immutable once written and racing writers produce identical values.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// DeleteMany removes keys and returns how many existed. Deleting a
	// missing key is a no-op; the count is observability only.
	DeleteMany(ctx context.Context, keys []string) (int, error)
	Ping(ctx context.Context) error
}
