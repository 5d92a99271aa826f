package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type entry struct {
	str        string
	list       []string
	isList     bool
	insertedAt time.Time
	ttl        time.Duration
}

// expired: absent at or after insertedAt+ttl.
func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && !now.Before(e.insertedAt.Add(e.ttl))
}

// MemoryCache is an in-process Cache. Expired entries are removed when touched.
type MemoryCache struct {
	mu     sync.Mutex
	items  map[string]*entry
	now    func() time.Time
	closed bool
}

type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]*entry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookup must be called with mu held.
func (c *MemoryCache) lookup(key string) (*entry, bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.items, key)
		return nil, false
	}
	return e, true
}

func (c *MemoryCache) check(op, key string) error {
	if c.closed {
		return &CacheError{Op: op, Key: key, Err: ErrClosed}
	}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("get", key); err != nil {
		return "", err
	}
	e, ok := c.lookup(key)
	if !ok {
		return "", ErrMiss
	}
	if e.isList {
		return "", &CacheError{Op: "get", Key: key, Err: ErrWrongType}
	}
	return e.str, nil
}

func (c *MemoryCache) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("getmany", ""); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if e, ok := c.lookup(key); ok && !e.isList {
			out[key] = e.str
		}
	}
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("set", key); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	c.items[key] = &entry{str: value, insertedAt: c.now(), ttl: ttl}
	return nil
}

func (c *MemoryCache) Del(_ context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("del", ""); err != nil {
		return 0, err
	}
	var n int64
	for _, key := range keys {
		if _, ok := c.lookup(key); ok {
			delete(c.items, key)
			n++
		}
	}
	return n, nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("exists", key); err != nil {
		return false, err
	}
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *MemoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("ttl", key); err != nil {
		return 0, err
	}
	e, ok := c.lookup(key)
	if !ok {
		return 0, ErrMiss
	}
	if e.ttl == 0 {
		return NoExpiry, nil
	}
	return e.insertedAt.Add(e.ttl).Sub(c.now()), nil
}

func (c *MemoryCache) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("expire", key); err != nil {
		return false, err
	}
	e, ok := c.lookup(key)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		delete(c.items, key)
		return true, nil
	}
	e.insertedAt = c.now()
	e.ttl = ttl
	return true, nil
}

func (c *MemoryCache) Increment(ctx context.Context, key string) (int64, error) {
	return c.incrBy(key, 1)
}

func (c *MemoryCache) Decrement(ctx context.Context, key string) (int64, error) {
	return c.incrBy(key, -1)
}

// incrBy keeps insertedAt and ttl of an existing counter, like INCR in
// Redis. Only a new key starts a fresh entry without expiry.
func (c *MemoryCache) incrBy(key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("incr", key); err != nil {
		return 0, err
	}
	e, ok := c.lookup(key)
	if !ok {
		c.items[key] = &entry{str: strconv.FormatInt(delta, 10), insertedAt: c.now()}
		return delta, nil
	}
	if e.isList {
		return 0, &CacheError{Op: "incr", Key: key, Err: ErrWrongType}
	}
	n, err := strconv.ParseInt(e.str, 10, 64)
	if err != nil {
		return 0, &CacheError{Op: "incr", Key: key, Err: ErrWrongType}
	}
	n += delta
	e.str = strconv.FormatInt(n, 10)
	return n, nil
}

// listEntry returns the list at key, creating it when create is set.
// Must be called with mu held.
func (c *MemoryCache) listEntry(op, key string, create bool) (*entry, error) {
	if err := c.check(op, key); err != nil {
		return nil, err
	}
	e, ok := c.lookup(key)
	if !ok {
		if !create {
			return nil, nil
		}
		e = &entry{isList: true, insertedAt: c.now()}
		c.items[key] = e
		return e, nil
	}
	if !e.isList {
		return nil, &CacheError{Op: op, Key: key, Err: ErrWrongType}
	}
	return e, nil
}

func (c *MemoryCache) PushLeft(_ context.Context, key string, values ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.listEntry("lpush", key, true)
	if err != nil {
		return 0, err
	}
	list := make([]string, 0, len(values)+len(e.list))
	for i := len(values) - 1; i >= 0; i-- {
		list = append(list, values[i])
	}
	e.list = append(list, e.list...)
	return int64(len(e.list)), nil
}

// bounds converts Redis-style inclusive indices into a half-open slice range.
func bounds(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}

func (c *MemoryCache) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.listEntry("lrange", key, false)
	if err != nil || e == nil {
		return nil, err
	}
	lo, hi, ok := bounds(start, stop, int64(len(e.list)))
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo)
	copy(out, e.list[lo:hi])
	return out, nil
}

func (c *MemoryCache) Trim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.listEntry("ltrim", key, false)
	if err != nil || e == nil {
		return err
	}
	lo, hi, ok := bounds(start, stop, int64(len(e.list)))
	if !ok {
		delete(c.items, key)
		return nil
	}
	e.list = append([]string(nil), e.list[lo:hi]...)
	return nil
}

func (c *MemoryCache) Length(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.listEntry("llen", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.list)), nil
}

func (c *MemoryCache) RemoveValue(_ context.Context, key, value string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.listEntry("lrem", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	kept := e.list[:0]
	var removed int64
	for _, v := range e.list {
		if v == value {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	e.list = kept
	if len(e.list) == 0 {
		delete(c.items, key)
	}
	return removed, nil
}

func (c *MemoryCache) Flush(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("flush", prefix); err != nil {
		return 0, err
	}
	var n int64
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = make(map[string]*entry)
	return nil
}
