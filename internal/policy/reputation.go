package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReputationStore keeps signed per-identifier scores in Redis. Scores move
// down on failed attempts and up on successful ones; the policy below
// denies principals whose score fell under a threshold.
type ReputationStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewReputationStore creates a store using the given key prefix and score
// expiry. A zero ttl keeps scores forever.
func NewReputationStore(client redis.UniversalClient, prefix string, ttl time.Duration) *ReputationStore {
	if prefix == "" {
		prefix = "rep"
	}
	return &ReputationStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *ReputationStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Score reads the current score for identifier. Missing keys score zero.
func (s *ReputationStore) Score(ctx context.Context, identifier string) (int64, error) {
	if s == nil || s.redis == nil {
		return 0, errors.New("reputation store not configured")
	}

	score, err := s.redis.Get(ctx, s.key(identifier)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation score: %w", err)
	}
	return score, nil
}

// ReportOutcome adjusts the score for identifier: +1 on success, -1 on
// failure. The expiry is refreshed on every report.
func (s *ReputationStore) ReportOutcome(ctx context.Context, identifier string, success bool) error {
	if s == nil || s.redis == nil {
		return errors.New("reputation store not configured")
	}

	delta := int64(1)
	if !success {
		delta = -1
	}

	key := s.key(identifier)
	pipe := s.redis.TxPipeline()
	pipe.IncrBy(ctx, key, delta)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reputation report: %w", err)
	}
	return nil
}

// ReputationPolicy denies principals whose accumulated score is below
// Threshold. CheckIP and CheckUsername select which identifiers are
// consulted; when both are set the worse score wins.
type ReputationPolicy struct {
	Base
	Store         *ReputationStore
	Threshold     int64
	CheckIP       bool
	CheckUsername bool
}

func (p *ReputationPolicy) Kind() string { return "reputation" }

func (p *ReputationPolicy) Evaluate(ctx context.Context, req *Request) (Result, error) {
	if p.Store == nil {
		return Result{}, errors.New("reputation policy without store")
	}
	if req == nil {
		return Result{Passed: false, Reason: ReasonReputationBelow}, nil
	}

	lowest := int64(0)
	checked := false

	if p.CheckIP && req.ClientIP != "" {
		score, err := p.Store.Score(ctx, "ip:"+req.ClientIP)
		if err != nil {
			return Result{}, err
		}
		lowest = score
		checked = true
	}

	if p.CheckUsername && req.Principal.Username != "" {
		score, err := p.Store.Score(ctx, "user:"+req.Principal.Username)
		if err != nil {
			return Result{}, err
		}
		if !checked || score < lowest {
			lowest = score
		}
		checked = true
	}

	if checked && lowest < p.Threshold {
		// Reputation shifts between requests, so the outcome must not be
		// baked into a cached plan.
		return Result{Passed: false, Reason: ReasonReputationBelow, Cacheable: false}, nil
	}

	return Result{Passed: true, Cacheable: false}, nil
}
