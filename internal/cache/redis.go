package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 256

// RedisStore implements [Store] on a shared Redis instance. Prefix scans
// use SCAN, never KEYS, so invalidation does not block the server.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %w", ErrUnavailable, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.redis.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
	}
	return keys, nil
}

func (s *RedisStore) DeleteMany(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: del: %w", ErrUnavailable, err)
	}
	return int(deleted), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}
