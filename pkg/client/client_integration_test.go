//go:build integration

package client

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-crawler/internal/testutil"
	"github.com/Sternrassler/catalog-crawler/pkg/cache"
)

func TestIntegration_RedisPayloadCache(t *testing.T) {
	redisClient := testutil.StartRedis(t)

	api := testutil.NewMockAPI()
	defer api.Close()

	cfg := testConfig(api)
	cfg.Cache = cache.NewManager(redisClient, time.Minute)
	c := newTestClient(t, cfg)

	ctx := context.Background()

	first := c.Fetch(ctx, "1001")
	if first.Kind != OutcomeSuccess || first.FromCache {
		t.Fatalf("first fetch = %s (from cache %v)", first.Kind, first.FromCache)
	}

	second := c.Fetch(ctx, "1001")
	if !second.FromCache {
		t.Error("second fetch should be served from Redis")
	}
	if api.RequestCount() != 1 {
		t.Errorf("requests = %d, want 1", api.RequestCount())
	}

	// A fresh client sharing the Redis instance also hits the cache
	other := newTestClient(t, cfg)
	if out := other.Fetch(ctx, "1001"); !out.FromCache {
		t.Error("fetch from second client should be served from Redis")
	}
}

func TestIntegration_CacheExpiration(t *testing.T) {
	redisClient := testutil.StartRedis(t)

	api := testutil.NewMockAPI()
	defer api.Close()

	cfg := testConfig(api)
	cfg.Cache = cache.NewManager(redisClient, time.Second)
	c := newTestClient(t, cfg)

	ctx := context.Background()
	c.Fetch(ctx, "1001")

	time.Sleep(2 * time.Second)

	if out := c.Fetch(ctx, "1001"); out.FromCache {
		t.Error("expired entry should not be served")
	}
	if api.RequestCount() != 2 {
		t.Errorf("requests = %d, want 2", api.RequestCount())
	}
}
