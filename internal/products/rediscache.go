package products

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an optional read-through cache in front of the
// JSON-on-disk product store (spec §10 Open Question: caching
// decision), grounded on the teacher's own `*redis.Client` wiring in
// cmd/server/main.go.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps an already-connected client. ttl of 0 disables
// expiry on cached entries.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(product string) string { return "aoi:product_config:" + product }

func (c *RedisCache) Get(product string) ([]byte, bool) {
	data, err := c.rdb.Get(context.Background(), cacheKey(product)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(product string, data []byte) {
	c.rdb.Set(context.Background(), cacheKey(product), data, c.ttl)
}

func (c *RedisCache) Invalidate(product string) {
	c.rdb.Del(context.Background(), cacheKey(product))
}
