// Package cache is a key/value store with per-key TTL and list values.
// MemoryCache expires entries lazily on access; RedisCache delegates to Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NoExpiry is reported by TTL for keys without an expiry.
const NoExpiry time.Duration = -1

var (
	// ErrMiss is returned when a key is absent or expired.
	ErrMiss = errors.New("cache: miss")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache: closed")
	// ErrWrongType is returned for a string op on a list key or vice versa.
	ErrWrongType = errors.New("cache: wrong value type")
)

// CacheError wraps a failure of the underlying store. Callers treat it as
// "cache unavailable" and fall back to the durable store.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a store failure rather than a miss.
func IsUnavailable(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}

// Cache is implemented by MemoryCache and RedisCache.
// List indices are inclusive; negative indices count from the tail.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// GetMany returns only the keys that are present.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Expire returns false when the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	Decrement(ctx context.Context, key string) (int64, error)

	// PushLeft prepends values one by one, so the last value ends up at the head.
	PushLeft(ctx context.Context, key string, values ...string) (int64, error)
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Trim(ctx context.Context, key string, start, stop int64) error
	Length(ctx context.Context, key string) (int64, error)
	RemoveValue(ctx context.Context, key, value string) (int64, error)

	// Flush deletes every key with the prefix; an empty prefix deletes all.
	Flush(ctx context.Context, prefix string) (int64, error)
	Close() error
}

// GetJSON decodes a cached JSON value into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return &CacheError{Op: "decode", Key: key, Err: err}
	}
	return nil
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	return c.Set(ctx, key, string(raw), ttl)
}
