package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	config := Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	}
	cache, err := NewMemoryCache(config)
	assert.NoError(t, err)
	assert.NotNil(t, cache)

	err = cache.Set("key1", "value1", 0)
	assert.NoError(t, err)

	val, found, err := cache.Get("key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found, err = cache.Get("non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	err = cache.Set("expire-soon", "temp-value", time.Millisecond*500)
	assert.NoError(t, err)

	time.Sleep(time.Second)

	val, found, err = cache.Get("expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	err = cache.Set("to-delete", "delete-me", 0)
	assert.NoError(t, err)

	err = cache.Delete("to-delete")
	assert.NoError(t, err)

	_, found, err = cache.Get("to-delete")
	assert.NoError(t, err)
	assert.False(t, found)

	err = cache.Set("key2", "value2", 0)
	assert.NoError(t, err)

	err = cache.Clear()
	assert.NoError(t, err)

	_, found, err = cache.Get("key2")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	config := Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		DefaultTTL: time.Second * 2,
	}

	cache, err := NewRedisCache(config)
	require.NoError(t, err)
	assert.NotNil(t, cache)

	err = cache.Set("redis-key1", "redis-value1", 0)
	assert.NoError(t, err)

	val, found, err := cache.Get("redis-key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "redis-value1", val)

	val, found, err = cache.Get("redis-non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	err = cache.Set("redis-expire-soon", "redis-temp-value", time.Second)
	assert.NoError(t, err)

	// miniredis expires keys on demand via FastForward.
	mr.FastForward(2 * time.Second)

	val, found, err = cache.Get("redis-expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	err = cache.Set("redis-to-delete", "redis-delete-me", 0)
	assert.NoError(t, err)

	err = cache.Delete("redis-to-delete")
	assert.NoError(t, err)

	_, found, err = cache.Get("redis-to-delete")
	assert.NoError(t, err)
	assert.False(t, found)

	err = cache.Set("redis-clear-me", "value", 0)
	assert.NoError(t, err)

	err = cache.Clear()
	assert.NoError(t, err)

	_, found, err = cache.Get("redis-clear-me")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestCacheFactory(t *testing.T) {
	memConfig := DefaultConfig()
	memCache, err := NewCache(memConfig)
	assert.NoError(t, err)
	assert.NotNil(t, memCache)

	mr := miniredis.RunT(t)
	redisConfig := Config{
		Type:      "redis",
		RedisAddr: mr.Addr(),
	}

	redisCache, err := NewCache(redisConfig)
	require.NoError(t, err)
	err = redisCache.Set("factory-test", "value", 0)
	assert.NoError(t, err)
	redisCache.Delete("factory-test")

	// Unknown types fall back to the in-memory cache.
	unknownConfig := Config{
		Type: "unknown-type",
	}
	unknownCache, err := NewCache(unknownConfig)
	assert.NoError(t, err)
	assert.NotNil(t, unknownCache)
}

func TestGenerateCacheKey(t *testing.T) {
	key := GenerateCacheKey("prefix")
	assert.Equal(t, "prefix", key)

	key = GenerateCacheKey("prefix", "part1")
	assert.Equal(t, "prefix:part1", key)

	key = GenerateCacheKey("prefix", "part1", "part2", "part3")
	assert.Equal(t, "prefix:part1:part2:part3", key)
}
