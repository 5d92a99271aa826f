package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient works with both single node and cluster.
func NewRedisClient(addrs []string, password string, db int, useCluster bool) redis.UniversalClient {
	if useCluster && len(addrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: password,
		})
	}
	addr := "localhost:6379"
	if len(addrs) > 0 {
		addr = addrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisCache implements Cache on Redis. Every key is stored as namespace:key.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisCache(client redis.UniversalClient, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

func (c *RedisCache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	return &CacheError{Op: op, Key: key, Err: err}
}

// Ping checks connectivity at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	return wrap("ping", "", c.client.Ping(ctx).Err())
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.key(key)).Result()
	return v, wrap("get", key, err)
}

func (c *RedisCache) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	vals, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, wrap("getmany", "", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return wrap("set", key, c.client.Set(ctx, c.key(key), value, ttl).Err())
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	n, err := c.client.Del(ctx, full...).Result()
	return n, wrap("del", "", err)
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	return n > 0, wrap("exists", key, err)
}

func (c *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.client.TTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, wrap("ttl", key, err)
	}
	// go-redis reports -2 for a missing key and -1 for no expiry.
	switch {
	case d == -2:
		return 0, ErrMiss
	case d < 0:
		return NoExpiry, nil
	}
	return d, nil
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		n, err := c.client.Del(ctx, c.key(key)).Result()
		return n > 0, wrap("expire", key, err)
	}
	ok, err := c.client.Expire(ctx, c.key(key), ttl).Result()
	return ok, wrap("expire", key, err)
}

func (c *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, c.key(key)).Result()
	return n, wrap("incr", key, err)
}

func (c *RedisCache) Decrement(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Decr(ctx, c.key(key)).Result()
	return n, wrap("decr", key, err)
}

func (c *RedisCache) PushLeft(ctx context.Context, key string, values ...string) (int64, error) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := c.client.LPush(ctx, c.key(key), args...).Result()
	return n, wrap("lpush", key, err)
}

func (c *RedisCache) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.client.LRange(ctx, c.key(key), start, stop).Result()
	if err != nil {
		return nil, wrap("lrange", key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

func (c *RedisCache) Trim(ctx context.Context, key string, start, stop int64) error {
	return wrap("ltrim", key, c.client.LTrim(ctx, c.key(key), start, stop).Err())
}

func (c *RedisCache) Length(ctx context.Context, key string) (int64, error) {
	n, err := c.client.LLen(ctx, c.key(key)).Result()
	return n, wrap("llen", key, err)
}

func (c *RedisCache) RemoveValue(ctx context.Context, key, value string) (int64, error) {
	n, err := c.client.LRem(ctx, c.key(key), 0, value).Result()
	return n, wrap("lrem", key, err)
}

// Flush scans for namespace:prefix* and deletes in batches.
// On a cluster every master is scanned.
func (c *RedisCache) Flush(ctx context.Context, prefix string) (int64, error) {
	pattern := c.key(prefix) + "*"

	if cc, ok := c.client.(*redis.ClusterClient); ok {
		var total atomic.Int64
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			n, err := flushNode(ctx, node, pattern)
			total.Add(n)
			return err
		})
		return total.Load(), wrap("flush", prefix, err)
	}

	n, err := flushNode(ctx, c.client, pattern)
	return n, wrap("flush", prefix, err)
}

func flushNode(ctx context.Context, client redis.Cmdable, pattern string) (int64, error) {
	var total int64
	iter := client.Scan(ctx, 0, pattern, 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := client.Del(ctx, batch...).Result()
			if err != nil {
				return total, err
			}
			total += n
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return total, err
	}
	if len(batch) > 0 {
		n, err := client.Del(ctx, batch...).Result()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
