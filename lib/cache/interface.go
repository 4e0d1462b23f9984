package cache

// ICache is a capacity-bounded key-value cache whose entries expire after a fixed TTL.
//
// Thread-safety: Implementations must be safe for concurrent use.
type ICache[V any] interface {
	// Get returns the value for key. Expired entries are removed and reported as a miss.
	// A hit marks the entry as most recently used.
	Get(key string) (value V, ok bool)
	// Put inserts or refreshes an entry, its expiry is reset to now + TTL.
	// If the cache exceeds its capacity the least recently used entry is evicted.
	Put(key string, value V)
	// Generation returns the current generation of key. Every Put, Remove, Invalidate and Purge
	// affecting key advances it. Read-through callers record it before loading a value.
	Generation(key string) uint64
	// PutIfGeneration inserts value like Put, but only if the generation of key is still gen.
	// It returns false (and stores nothing) if key was modified or removed since gen was recorded.
	PutIfGeneration(key string, gen uint64, value V) (stored bool)
	// Remove removes the entry for key, if present.
	Remove(key string) (removed bool)
	// Invalidate removes all entries whose key starts with prefix and returns how many were removed.
	Invalidate(prefix string) (removed int)
	// Len returns the number of entries, including expired entries not yet swept.
	Len() int
	// Purge removes all entries.
	Purge()
	// Close stops the background sweep. It is safe to call Close more than once.
	Close() error
}
