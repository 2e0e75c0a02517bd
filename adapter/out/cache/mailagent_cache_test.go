package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mailagent_server/core/port/out"
)

type cacheUnderTest interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	FlushUser(ctx context.Context, userID string) error
	Stats(ctx context.Context) (out.CacheStats, error)
	Close() error
}

func newMemory(t *testing.T) cacheUnderTest {
	t.Helper()
	c := NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	return c
}

func newRedis(t *testing.T) (cacheUnderTest, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func runBackends(t *testing.T, test func(t *testing.T, c cacheUnderTest)) {
	t.Run("memory", func(t *testing.T) {
		test(t, newMemory(t))
	})
	t.Run("redis", func(t *testing.T) {
		c, _ := newRedis(t)
		test(t, c)
	})
}

func TestCacheBasicOps(t *testing.T) {
	runBackends(t, func(t *testing.T, c cacheUnderTest) {
		ctx := context.Background()

		if _, err := c.Get(ctx, "importance:u1:e1"); !errors.Is(err, ErrMiss) {
			t.Errorf("get before set err = %v, want ErrMiss", err)
		}
		if err := c.Set(ctx, "importance:u1:e1", []byte(`{"score":3}`), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if !c.Has(ctx, "importance:u1:e1") {
			t.Error("Has = false after Set")
		}
		got, err := c.Get(ctx, "importance:u1:e1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != `{"score":3}` {
			t.Errorf("value = %q", got)
		}

		if err := c.Delete(ctx, "importance:u1:e1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if c.Has(ctx, "importance:u1:e1") {
			t.Error("Has = true after Delete")
		}
	})
}

func TestCacheFlushUser(t *testing.T) {
	runBackends(t, func(t *testing.T, c cacheUnderTest) {
		ctx := context.Background()

		seeds := map[string]string{
			"importance:u1:e1": "a",
			"importance:u1:e2": "b",
			"labels:u1:e1":     "c",
			"importance:u2:e1": "d",
		}
		for key, value := range seeds {
			if err := c.Set(ctx, key, []byte(value), time.Minute); err != nil {
				t.Fatalf("Set(%s): %v", key, err)
			}
		}

		if err := c.FlushUser(ctx, "u1"); err != nil {
			t.Fatalf("FlushUser: %v", err)
		}
		for _, gone := range []string{"importance:u1:e1", "importance:u1:e2", "labels:u1:e1"} {
			if c.Has(ctx, gone) {
				t.Errorf("key %s survived FlushUser(u1)", gone)
			}
		}
		if !c.Has(ctx, "importance:u2:e1") {
			t.Error("other user's key was flushed")
		}
	})
}

func TestCacheFlush(t *testing.T) {
	runBackends(t, func(t *testing.T, c cacheUnderTest) {
		ctx := context.Background()
		c.Set(ctx, "importance:u1:e1", []byte("a"), time.Minute)
		c.Set(ctx, "importance:u2:e1", []byte("b"), time.Minute)

		if err := c.Flush(ctx); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		stats, err := c.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Keys != 0 {
			t.Errorf("keys = %d after Flush, want 0", stats.Keys)
		}
	})
}

func TestCacheStats(t *testing.T) {
	runBackends(t, func(t *testing.T, c cacheUnderTest) {
		ctx := context.Background()

		c.Get(ctx, "importance:u1:missing")
		c.Set(ctx, "importance:u1:e1", []byte("a"), time.Minute)
		c.Get(ctx, "importance:u1:e1")
		c.Get(ctx, "importance:u1:e1")

		stats, err := c.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Keys != 1 {
			t.Errorf("keys = %d, want 1", stats.Keys)
		}
		if stats.Hits != 2 {
			t.Errorf("hits = %d, want 2", stats.Hits)
		}
		if stats.Misses != 1 {
			t.Errorf("misses = %d, want 1", stats.Misses)
		}
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	if err := c.Set(ctx, "importance:u1:e1", []byte("a"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := c.Get(ctx, "importance:u1:e1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expired get err = %v, want ErrMiss", err)
	}
	if c.Has(ctx, "importance:u1:e1") {
		t.Error("Has = true for expired key")
	}
}

func TestMemoryCacheZeroTTL(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	if err := c.Set(ctx, "session:u1:s1", []byte("a"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := c.Get(ctx, "session:u1:s1"); err != nil {
		t.Errorf("zero-ttl key should not expire: %v", err)
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	c, mr := newRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "importance:u1:e1", []byte("a"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := c.Get(ctx, "importance:u1:e1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expired get err = %v, want ErrMiss", err)
	}
}
