package app

import (
	"testing"

	"github.com/hitoshi/ballotbuddies/internal/cache"
	"github.com/hitoshi/ballotbuddies/internal/config"
)

func TestNewCache_WithoutRedis_UsesLocalCache(t *testing.T) {
	c, closeFn, err := newCache(&config.Config{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if closeFn != nil {
		t.Error("local cache should not return a close function")
	}
	if _, ok := c.(*cache.LocalCache); !ok {
		t.Errorf("cache = %T, want *cache.LocalCache", c)
	}
}

func TestNewCache_InvalidRedisURL_ReturnsError(t *testing.T) {
	if _, _, err := newCache(&config.Config{RedisURL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid REDIS_URL")
	}
}
