// Package cache provides the in-memory read cache of the document store.
//
// The cache is bounded in two dimensions:
//   - Capacity: at most MaxSize entries are kept. Inserting into a full cache
//     evicts the least recently used entry. Both Get hits and Put count as use.
//   - Time: every entry expires TTL after its last Put. An expired entry is
//     never returned; it is removed on access or by the background sweep,
//     whichever comes first.
//
// Key Components:
//
//   - ICache: The generic cache interface.
//
//   - cacheImpl: The implementation. Recency is tracked by the LRU of
//     hashicorp/golang-lru (simplelru), guarded by a single mutex. Expiry times
//     are indexed in a util.MapHeap keyed by cache key, so a sweep pops expired
//     entries from the heap instead of scanning the whole cache. The LRU
//     eviction callback keeps the heap in sync with the LRU.
//
// Read-through consistency:
//
//	Every key has a generation that advances on Put, Remove, Invalidate and
//	Purge. A caller that fills the cache from a slower source records
//	Generation(key) before loading and stores the loaded value with
//	PutIfGeneration. If the key was written or removed in between, the loaded
//	value is stale and is not cached. Generations are kept on a fixed number of
//	stripes (xxhash of the key), so unrelated keys on the same stripe may cause
//	a skipped fill, never a stale one.
//
// Metrics (VictoriaMetrics):
//
//	ddoc_cache_hits_total, ddoc_cache_misses_total,
//	ddoc_cache_evictions_total, ddoc_cache_expirations_total
//
// Thread-safety:
//
//	All methods are safe for concurrent use. Values are returned as stored, so
//	callers that need isolation must store immutable values (the store caches
//	encoded documents for that reason).
//
// Usage:
//
//	c := cache.NewCache[[]byte](&cache.Options{MaxSize: 100, TTL: time.Minute})
//	defer c.Close()
//	c.Put("users/1.json", data)
//	if data, ok := c.Get("users/1.json"); ok { ... }
//	c.Invalidate("users/")
package cache
