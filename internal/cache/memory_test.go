package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSetGetExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(WithClock(clock.Now))

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Second))

	clock.Advance(9*time.Second + 999*time.Millisecond)
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	// absent exactly at insertedAt+ttl
	clock.Advance(time.Millisecond)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Zero(t, c.Len(), "expired entry must be removed on read")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(WithClock(clock.Now))

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	clock.Advance(365 * 24 * time.Hour)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	ttl, err := c.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, NoExpiry, ttl)
}

func TestSetResetsInsertedAt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(WithClock(clock.Now))

	require.NoError(t, c.Set(ctx, "k", "a", 10*time.Second))
	clock.Advance(8 * time.Second)
	require.NoError(t, c.Set(ctx, "k", "b", 10*time.Second))
	clock.Advance(8 * time.Second)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	ttl, err := c.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, ttl)
}

func TestIncrementKeepsTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(WithClock(clock.Now))

	n, err := c.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := c.Expire(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	n, err = c.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := c.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)

	n, err = c.Decrement(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clock.Advance(30 * time.Second)
	n, err = c.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after expiry")
}

func TestIncrementWrongType(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "k", "text", 0))
	_, err := c.Increment(ctx, "k")
	assert.ErrorIs(t, err, ErrWrongType)
	assert.True(t, IsUnavailable(err))
}

func TestListOperations(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	n, err := c.PushLeft(ctx, "feed", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = c.PushLeft(ctx, "feed", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := c.Range(ctx, "feed", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, all)

	page, err := c.Range(ctx, "feed", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, page)

	tail, err := c.Range(ctx, "feed", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, tail)

	out, err := c.Range(ctx, "feed", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, out)

	require.NoError(t, c.Trim(ctx, "feed", 0, 1))
	all, err = c.Range(ctx, "feed", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, all)

	removed, err := c.RemoveValue(ctx, "feed", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	length, err := c.Length(ctx, "feed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	_, err = c.RemoveValue(ctx, "feed", "b")
	require.NoError(t, err)
	exists, err := c.Exists(ctx, "feed")
	require.NoError(t, err)
	assert.False(t, exists, "empty list is removed")
}

func TestListExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(WithClock(clock.Now))

	_, err := c.PushLeft(ctx, "feed", "a")
	require.NoError(t, err)
	_, err = c.Expire(ctx, "feed", time.Second)
	require.NoError(t, err)

	clock.Advance(time.Second)
	vals, err := c.Range(ctx, "feed", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestGetManyAndFlush(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "n:item:u1:1", "one", 0))
	require.NoError(t, c.Set(ctx, "n:item:u1:2", "two", 0))
	require.NoError(t, c.Set(ctx, "n:item:u2:1", "other", 0))

	got, err := c.GetMany(ctx, "n:item:u1:1", "n:item:u1:2", "n:item:u1:3")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"n:item:u1:1": "one", "n:item:u1:2": "two"}, got)

	n, err := c.Flush(ctx, "n:item:u1:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = c.Get(ctx, "n:item:u2:1")
	assert.NoError(t, err)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	type item struct {
		ID   string `json:"id"`
		Read bool   `json:"read"`
	}
	require.NoError(t, SetJSON(ctx, c, "k", item{ID: "1", Read: true}, 0))

	var got item
	require.NoError(t, GetJSON(ctx, c, "k", &got))
	assert.Equal(t, item{ID: "1", Read: true}, got)

	assert.ErrorIs(t, GetJSON(ctx, c, "missing", &got), ErrMiss)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Close())

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, IsUnavailable(err))
}

func TestConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Increment(ctx, "hits")
		}()
	}
	wg.Wait()

	v, err := c.Get(ctx, "hits")
	require.NoError(t, err)
	assert.Equal(t, "50", v)
}
