// Package cache provides an optional Redis-backed cache of raw product payloads.
//
// When a crawl re-runs a batch (because its artifact was missing or below the
// validity threshold), identifiers fetched successfully within the cache TTL
// are served from Redis instead of the remote API. Only bodies that decoded
// into a JSON object are stored.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	body, err := manager.Get(ctx, "1001")
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then
//		_ = manager.Set(ctx, "1001", body)
//	}
//
// # Metrics
//
//   - crawler_cache_hits_total - Cache hits
//   - crawler_cache_misses_total - Cache misses
//   - crawler_cache_size_bytes - Bytes written to the cache
//   - crawler_cache_errors_total{operation} - Cache operation errors
//
// The cache never decides whether a batch is complete; that is derived from
// the artifact directory alone.
package cache
