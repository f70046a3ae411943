//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/akanksha509/backend-task/internal/ratelimit"
	"github.com/akanksha509/backend-task/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ratelimit.RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = ratelimit.NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) TearDownSuite() {
	if s.redis != nil {
		_ = s.redis.Client.Close()
		_ = s.redis.Container.Terminate(context.Background())
	}
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestAllowUpToLimit() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := s.store.Allow(ctx, "1.2.3.4", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(3-(i+1), result.Remaining)
	}

	result, err := s.store.Allow(ctx, "1.2.3.4", 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.False(result.ResetAt.IsZero())
}

func (s *RedisBucketStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()

	_, err := s.store.Allow(ctx, "1.2.3.4", 1, time.Minute)
	s.Require().NoError(err)

	other, err := s.store.Allow(ctx, "5.6.7.8", 1, time.Minute)
	s.Require().NoError(err)
	s.True(other.Allowed)
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()

	_, err := s.store.Allow(ctx, "1.2.3.4", 1, time.Minute)
	s.Require().NoError(err)
	denied, err := s.store.Allow(ctx, "1.2.3.4", 1, time.Minute)
	s.Require().NoError(err)
	s.Require().False(denied.Allowed)

	s.Require().NoError(s.store.Reset(ctx, "1.2.3.4"))

	allowed, err := s.store.Allow(ctx, "1.2.3.4", 1, time.Minute)
	s.Require().NoError(err)
	s.True(allowed.Allowed)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	window := time.Second

	_, err := s.store.Allow(ctx, "1.2.3.4", 1, window)
	s.Require().NoError(err)
	denied, err := s.store.Allow(ctx, "1.2.3.4", 1, window)
	s.Require().NoError(err)
	s.Require().False(denied.Allowed)

	time.Sleep(window + 100*time.Millisecond)

	allowed, err := s.store.Allow(ctx, "1.2.3.4", 1, window)
	s.Require().NoError(err)
	s.True(allowed.Allowed, "a new fixed window starts with a fresh budget")
}
