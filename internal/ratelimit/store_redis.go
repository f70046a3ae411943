package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBucketStore implements BucketStore with a fixed window shared across
// replicas: INCR on a window-scoped key, EXPIRE on first hit.
type RedisBucketStore struct {
	client *redis.Client
	prefix string
}

func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client, prefix: "ratelimit"}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := time.Now()
	windowStart := now.Truncate(window)
	bucketKey := fmt.Sprintf("%s:%s:%d", s.prefix, key, windowStart.Unix())

	pipe := s.client.TxPipeline()
	count := pipe.Incr(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis rate limit: %w", err)
	}

	n := int(count.Val())
	resetAt := windowStart.Add(window)
	if n > limit {
		return &Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}
	return &Result{
		Allowed:   true,
		Remaining: limit - n,
		Limit:     limit,
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	pattern := fmt.Sprintf("%s:%s:*", s.prefix, key)
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis rate limit reset: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis rate limit reset scan: %w", err)
	}
	return nil
}
