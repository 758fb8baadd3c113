package cache

import (
	"time"
)

// Cache stores answer strings keyed by question. Used to skip repeated
// LLM calls for identical history-free questions.
type Cache interface {
	Get(key string) (value string, found bool, err error)
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Factory builds a cache from its configuration.
type Factory func(config Config) (Cache, error)

var registry = make(map[string]Factory)

// RegisterCache registers a cache implementation under a name.
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache creates a cache of the configured type, falling back to the
// in-memory cache for unknown types.
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// Config holds the cache settings.
type Config struct {
	// Type selects the implementation: "memory" or "redis".
	Type string
	// RedisAddr is the Redis address (redis only).
	RedisAddr string
	// RedisPassword is the Redis password (redis only).
	RedisPassword string
	// RedisDB is the Redis database number (redis only).
	RedisDB int
	// DefaultTTL is the expiry used when Set gets a zero ttl.
	DefaultTTL time.Duration
	// CleanupInterval is the janitor interval (memory only).
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		DefaultTTL:      time.Hour * 24,
		CleanupInterval: time.Minute * 10,
	}
}

// GenerateCacheKey joins a prefix and parts into a stable cache key.
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}

	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
