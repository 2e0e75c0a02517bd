package cache

import (
	"context"
	"sync/atomic"
	"time"

	"mailagent_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

const flushUserScanCount = 100

// RedisCache is the Redis backend, selected when REDIS_URL is set. Hit and
// miss counters are process local; key counts come from the server.
type RedisCache struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	c.hits.Add(1)
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Has(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Flush(ctx context.Context) error {
	return c.client.FlushDB(ctx).Err()
}

// FlushUser scans for "<prefix>:<user_id>:..." keys and deletes them in
// scan-sized chunks.
func (c *RedisCache) FlushUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	pattern := "*:" + userID + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, flushUserScanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *RedisCache) Stats(ctx context.Context) (out.CacheStats, error) {
	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return out.CacheStats{}, err
	}
	return out.CacheStats{
		Keys:   int(size),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
