package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/identify", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInMemoryBucketStoreAllowsUpToLimit(t *testing.T) {
	s := NewInMemoryBucketStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := s.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 3-(i+1), result.Remaining)
	}

	result, err := s.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.False(t, result.ResetAt.IsZero())
}

func TestInMemoryBucketStoreKeysAreIndependent(t *testing.T) {
	s := NewInMemoryBucketStore()
	ctx := context.Background()

	_, err := s.Allow(ctx, "1.2.3.4", 1, time.Minute)
	require.NoError(t, err)

	other, err := s.Allow(ctx, "5.6.7.8", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "one caller's budget must not drain another's")
}

func TestInMemoryBucketStoreReset(t *testing.T) {
	s := NewInMemoryBucketStore()
	ctx := context.Background()

	_, err := s.Allow(ctx, "1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	denied, err := s.Allow(ctx, "1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	require.NoError(t, s.Reset(ctx, "1.2.3.4"))

	allowed, err := s.Allow(ctx, "1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}

func TestInMemoryBucketStoreWindowSlides(t *testing.T) {
	s := NewInMemoryBucketStore()
	ctx := context.Background()
	window := 20 * time.Millisecond

	_, err := s.Allow(ctx, "1.2.3.4", 1, window)
	require.NoError(t, err)
	denied, err := s.Allow(ctx, "1.2.3.4", 1, window)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	time.Sleep(window + 5*time.Millisecond)

	allowed, err := s.Allow(ctx, "1.2.3.4", 1, window)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed, "expired timestamps must age out of the window")
}

func TestMiddlewareBlocksOverBudget(t *testing.T) {
	limiter := New(NewInMemoryBucketStore(), discardLogger(), 2, time.Minute)
	handler := limiter.Middleware(okHandler())

	first := doRequest(handler, "1.2.3.4")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	second := doRequest(handler, "1.2.3.4")
	require.Equal(t, http.StatusOK, second.Code)

	third := doRequest(handler, "1.2.3.4")
	require.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.NotEmpty(t, third.Header().Get("Retry-After"))
	assert.Contains(t, third.Body.String(), "rate_limited")

	// A different caller still gets through.
	otherIP := doRequest(handler, "5.6.7.8")
	assert.Equal(t, http.StatusOK, otherIP.Code)
}

func TestMiddlewareKeysByForwardedFor(t *testing.T) {
	limiter := New(NewInMemoryBucketStore(), discardLogger(), 1, time.Minute)
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/identify", nil)
	req.RemoteAddr = "10.0.0.1:1"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "proxy-fronted callers are keyed by the original IP")
}

type failingBucketStore struct{}

func (failingBucketStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("store down")
}
func (failingBucketStore) Reset(context.Context, string) error { return nil }

func TestMiddlewareFailsOpenOnStoreErrors(t *testing.T) {
	limiter := New(failingBucketStore{}, discardLogger(), 1, time.Minute)
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(handler, "1.2.3.4")
		assert.Equal(t, http.StatusOK, rec.Code, "limiter outages must not take the endpoint down")
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	limiter := New(NewInMemoryBucketStore(), discardLogger(), 1, time.Minute, WithDisabled(true))
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := doRequest(handler, "1.2.3.4")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
