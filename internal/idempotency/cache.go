package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an optional fast-path lookup for idempotency keys, backed by
// Redis, mirroring the multi-node sharing pattern goa-ai's registry uses
// Redis for (see registry.Registry: "Nodes with the same name... share
// toolset registrations... across all nodes"). When REDIS_URL is unset the
// engine falls back to the SQLite unique index alone (store.Store.Enqueue
// already enforces the uniqueness constraint); Cache only replaces the
// by-key SQLite lookup with a by-id one for keys it has already seen.
type Cache struct {
	client *redis.Client
}

// NewCache builds a Cache against the given Redis connection string. A nil
// Cache is safe to call methods on: every method becomes a no-op / miss.
func NewCache(url string) (*Cache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Cache{client: redis.NewClient(opts)}, nil
}

// Lookup returns the job id previously associated with key, if cached.
func (c *Cache) Lookup(ctx context.Context, key string) (jobID string, ok bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	v, err := c.client.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// Remember caches key -> jobID for ttl, called right after Enqueue inserts
// the idempotency row so subsequent submits on other nodes hit Redis
// before round-tripping to SQLite.
func (c *Cache) Remember(ctx context.Context, key, jobID string, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, cacheKey(key), jobID, ttl)
}

// Forget removes a cached mapping, called when a job terminates as failed
// or canceled so a subsequent retry is not masked by a stale cache hit.
func (c *Cache) Forget(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, cacheKey(key))
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func cacheKey(key string) string {
	return "researchmcp:idempotency:" + key
}
