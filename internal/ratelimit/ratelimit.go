// Package ratelimit guards the identify endpoint with a per-IP request
// limit. Stores are pluggable: in-memory sliding window for a single
// process, redis fixed window when replicas must share a budget.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/akanksha509/backend-task/internal/platform/middleware"
	"github.com/akanksha509/backend-task/pkg/platform/httputil"
)

// Result reports one limiter decision.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// BucketStore tracks request counts per key within a window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	Reset(ctx context.Context, key string) error
}

// Limiter applies a fixed per-IP budget. Store failures fail open: limiting
// protects capacity, it must never take the endpoint down with it.
type Limiter struct {
	store    BucketStore
	logger   *slog.Logger
	limit    int
	window   time.Duration
	disabled bool
}

type Option func(*Limiter)

// WithDisabled turns the limiter into a pass-through (testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(l *Limiter) { l.disabled = disabled }
}

func New(store BucketStore, logger *slog.Logger, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		logger: logger,
		limit:  limit,
		window: window,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.disabled {
		logger.Info("rate limiting disabled")
	}
	return l
}

// Middleware enforces the limit keyed by client IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := middleware.ClientIP(r)
		result, err := l.store.Allow(r.Context(), ip, l.limit, l.window)
		if err != nil {
			l.logger.Error("rate limit check failed", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *Result) {
	retryAfter := int(time.Until(result.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
		"error":             "rate_limited",
		"error_description": "too many requests, slow down",
	})
}
