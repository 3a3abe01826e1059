package products

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(rdb, time.Minute)
}

func TestRedisCacheSetGetRoundTrips(t *testing.T) {
	c := newTestRedisCache(t)

	_, ok := c.Get("widget-a")
	require.False(t, ok)

	c.Set("widget-a", []byte(`{"name":"widget-a"}`))
	data, ok := c.Get("widget-a")
	require.True(t, ok)
	require.JSONEq(t, `{"name":"widget-a"}`, string(data))
}

func TestRedisCacheInvalidateRemovesEntry(t *testing.T) {
	c := newTestRedisCache(t)

	c.Set("widget-a", []byte(`{"name":"widget-a"}`))
	c.Invalidate("widget-a")

	_, ok := c.Get("widget-a")
	require.False(t, ok)
}
