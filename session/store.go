package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoRecord is returned by Get when the session carries no
// impersonation record.
var ErrNoRecord = errors.New("no impersonation record")

// Store persists impersonation records in Redis, keyed by session ID. The
// store is owned by the caller's session layer; the engine only reads.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a store under the given key prefix. ttl bounds how
// long a record survives without an explicit Clear; zero means it lives
// until the session layer clears it.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "imp"
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Set writes the record for sessionID, replacing any previous one.
func (s *Store) Set(ctx context.Context, sessionID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode impersonation record: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store impersonation record: %w", err)
	}
	return nil
}

// Get loads the record for sessionID, or [ErrNoRecord].
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("load impersonation record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode impersonation record: %w", err)
	}
	return &rec, nil
}

// Clear removes the record for sessionID. Clearing an absent record is a
// no-op.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear impersonation record: %w", err)
	}
	return nil
}

// IsActive reports whether sessionID currently carries a record.
func (s *Store) IsActive(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check impersonation record: %w", err)
	}
	return n > 0, nil
}
