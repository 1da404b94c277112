// Package cache provides an optional Redis-backed response cache for GET
// requests dispatched by the executor.
//
// Entries are stored under a deterministic method+URL key with a fixed TTL
// configured on the executor. Redis expires entries on its own; Get also
// checks the recorded expiry so a stale entry is never served.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{Method: "GET", URL: "https://example.com/data"}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from origin, then manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - rolling_cache_hits_total{layer="redis"} - Cache hits
//   - rolling_cache_misses_total - Cache misses
//   - rolling_cache_size_bytes{layer="redis"} - Cache size
//   - rolling_cache_errors_total{operation} - Cache operation errors
package cache
