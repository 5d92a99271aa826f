// Package ratelimit implements a fixed-window counter on top of the cache.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"daohub_backend/internal/cache"
	"daohub_backend/internal/logger"
	"daohub_backend/pkg/apperrors"
)

const keyPrefix = "ratelimit:"

type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Limited   bool
}

// Err returns the RateLimited error when the call was rejected.
func (r Result) Err() error {
	if !r.Limited {
		return nil
	}
	return apperrors.RateLimited(r.ResetAt)
}

type Limiter struct {
	cache cache.Cache
	now   func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(c cache.Cache, opts ...Option) *Limiter {
	l := &Limiter{cache: c, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for key. The first request in a window starts the
// window; request number max+1 and later are Limited until it expires.
// Cache failures fail open.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	k := keyPrefix + key
	now := l.now()

	count, err := l.cache.Increment(ctx, k)
	if err != nil {
		logger.CtxWithError(ctx, "rate limiter: cache unavailable, allowing request", err, "key", key)
		return Result{Limit: max, Remaining: max, ResetAt: now.Add(window)}, nil
	}

	ttl, err := l.cache.TTL(ctx, k)
	if count == 1 || err != nil || ttl == cache.NoExpiry {
		// New window, or a counter left without expiry by an earlier failure.
		if _, expErr := l.cache.Expire(ctx, k, window); expErr != nil {
			logger.CtxWithError(ctx, "rate limiter: failed to set window", expErr, "key", key)
		}
		ttl = window
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Limit:     max,
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
		Limited:   int(count) > max,
	}, nil
}

// IsLimited reports, without counting, whether the next Check would be rejected.
func (l *Limiter) IsLimited(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	raw, err := l.cache.Get(ctx, keyPrefix+key)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		logger.CtxWithError(ctx, "rate limiter: cache unavailable", err, "key", key)
		return false, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return false, nil
	}
	return count >= max, nil
}

// Reset starts a fresh window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	_, err := l.cache.Del(ctx, keyPrefix+key)
	return err
}
