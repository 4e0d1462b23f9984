package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cache")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultMaxSize = 1000
	DefaultTTL     = 15 * time.Minute

	// generationStripes is the number of generation counters keys are hashed onto.
	// Keys sharing a stripe share their generation.
	generationStripes = 1024
)

var (
	metricHits        = metrics.GetOrCreateCounter("ddoc_cache_hits_total")
	metricMisses      = metrics.GetOrCreateCounter("ddoc_cache_misses_total")
	metricEvictions   = metrics.GetOrCreateCounter("ddoc_cache_evictions_total")
	metricExpirations = metrics.GetOrCreateCounter("ddoc_cache_expirations_total")
)

// Options configures the cache behavior during initialization
type Options struct {
	MaxSize       int           // Maximum number of entries (0 = DefaultMaxSize)
	TTL           time.Duration // Lifetime of an entry (0 = DefaultTTL)
	SweepInterval time.Duration // Time between two background sweeps (0 = TTL)
}

// DefaultOptions returns the default cache options
func DefaultOptions() *Options {
	return &Options{
		MaxSize: DefaultMaxSize,
		TTL:     DefaultTTL,
	}
}

// --------------------------------------------------------------------------
// Core cache structure
// --------------------------------------------------------------------------

// entry is a cached value with its absolute expiry time
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type cacheImpl[V any] struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[string, entry[V]]
	expiry *util.MapHeap[string] // key -> expiresAt (unix nanos), kept in sync by the eviction callback
	ttl    time.Duration
	gens   [generationStripes]uint64 // guarded by mu

	// evictReason is set while a removal is in progress so the callback can count it correctly
	evictReason func()

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewCache creates a new cache with the specified options (optional) and starts the background sweep.
// The sweep goroutine runs until Close is called.
func NewCache[V any](opts *Options) ICache[V] {
	if opts == nil {
		opts = DefaultOptions()
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = ttl
	}

	c := &cacheImpl[V]{
		expiry: util.NewMapHeap[string](),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}

	// the error is only returned for a non-positive size, which is excluded above
	c.lru, _ = simplelru.NewLRU[string, entry[V]](maxSize, c.onEvict)

	c.wg.Add(1)
	go c.sweeper(sweepInterval)

	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see cache.ICache)
// --------------------------------------------------------------------------

func (c *cacheImpl[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		metricMisses.Inc()
		return zero, false
	}

	// a hit only counts while now < expiresAt
	if !time.Now().Before(e.expiresAt) {
		c.removeLocked(key, metricExpirations.Inc)
		metricMisses.Inc()
		return zero, false
	}

	metricHits.Inc()
	return e.value, true
}

func (c *cacheImpl[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[stripe(key)]++
	c.putLocked(key, value)
}

func (c *cacheImpl[V]) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gens[stripe(key)]
}

func (c *cacheImpl[V]) PutIfGeneration(key string, gen uint64, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[stripe(key)] != gen {
		return false
	}
	c.putLocked(key, value)
	return true
}

func (c *cacheImpl[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[stripe(key)]++
	return c.removeLocked(key, nil)
}

func (c *cacheImpl[V]) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// keys below prefix may be on any stripe
	c.bumpAllLocked()

	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) && c.removeLocked(key, nil) {
			removed++
		}
	}
	if removed > 0 {
		Logger.Debugf("invalidated %d entries with prefix %q", removed, prefix)
	}
	return removed
}

func (c *cacheImpl[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

func (c *cacheImpl[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bumpAllLocked()
	c.lru.Purge()
	c.expiry.Clear()
}

func (c *cacheImpl[V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// putLocked inserts or refreshes key. Callers must hold c.mu.
func (c *cacheImpl[V]) putLocked(key string, value V) {
	expiresAt := time.Now().Add(c.ttl)

	// Add evicts the least recently used entry through onEvict if the capacity is exceeded
	c.evictReason = metricEvictions.Inc
	c.lru.Add(key, entry[V]{value: value, expiresAt: expiresAt})
	c.evictReason = nil

	c.expiry.AddItem(key, expiresAt.UnixNano())
}

// bumpAllLocked advances every generation counter. Callers must hold c.mu.
func (c *cacheImpl[V]) bumpAllLocked() {
	for i := range c.gens {
		c.gens[i]++
	}
}

// stripe returns the generation counter index of key
func stripe(key string) uint64 {
	return xxhash.Sum64String(key) % generationStripes
}

// onEvict is called by the lru for every entry leaving the cache (eviction, Remove, Purge).
// It always runs while c.mu is held, because the lru is only used under c.mu.
func (c *cacheImpl[V]) onEvict(key string, _ entry[V]) {
	c.expiry.RemoveByKey(key)
	if c.evictReason != nil {
		c.evictReason()
	}
}

// removeLocked removes key from the lru and the expiry index. reason (optional) is counted once.
// Callers must hold c.mu.
func (c *cacheImpl[V]) removeLocked(key string, reason func()) bool {
	c.evictReason = reason
	removed := c.lru.Remove(key)
	c.evictReason = nil

	// keep the index consistent even if the lru did not know the key
	c.expiry.RemoveByKey(key)
	return removed
}

// sweep removes all entries that expired before now and returns how many were removed.
func (c *cacheImpl[V]) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for {
		item, ok := c.expiry.Peek()
		if !ok || item.Priority > now.UnixNano() {
			break
		}
		if c.removeLocked(item.Key, metricExpirations.Inc) {
			removed++
		}
	}
	return removed
}

// sweeper is the background loop that periodically removes expired entries.
// It bounds memory even if expired keys are never read again.
func (c *cacheImpl[V]) sweeper(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			if n := c.sweep(now); n > 0 {
				Logger.Debugf("sweep removed %d expired entries", n)
			}
		}
	}
}
