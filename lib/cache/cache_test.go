package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, opts *Options) ICache[string] {
	t.Helper()
	c := NewCache[string](opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t, nil)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// overwrite keeps a single entry
	c.Put("a", "2")
	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Len())
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t, &Options{TTL: 50 * time.Millisecond, SweepInterval: time.Hour})

	c.Put("a", "1")
	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok)
	// removed on access
	assert.Equal(t, 0, c.Len())
}

func TestPutRefreshesExpiry(t *testing.T) {
	c := newTestCache(t, &Options{TTL: 100 * time.Millisecond, SweepInterval: time.Hour})

	c.Put("a", "1")
	time.Sleep(60 * time.Millisecond)
	c.Put("a", "2")
	time.Sleep(60 * time.Millisecond)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(t, &Options{MaxSize: 2})

	c.Put("a", "1")
	c.Put("b", "2")

	// touch a so b becomes the least recently used entry
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", "3")
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	impl := c.(*cacheImpl[string])
	impl.mu.Lock()
	defer impl.mu.Unlock()
	assert.False(t, impl.expiry.Contains("b"), "expiry index must follow lru evictions")
	assert.Equal(t, 2, impl.expiry.Len())
}

func TestRemove(t *testing.T) {
	c := newTestCache(t, nil)

	c.Put("a", "1")
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	c := newTestCache(t, nil)

	c.Put("users/1.json", "1")
	c.Put("users/2.json", "2")
	c.Put("orders/1.json", "3")

	assert.Equal(t, 2, c.Invalidate("users/"))
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("orders/1.json")
	assert.True(t, ok)
	_, ok = c.Get("users/1.json")
	assert.False(t, ok)

	assert.Equal(t, 0, c.Invalidate("missing/"))
}

func TestPurge(t *testing.T) {
	c := newTestCache(t, nil)
	c.Put("a", "1")
	c.Put("b", "2")

	c.Purge()
	assert.Equal(t, 0, c.Len())

	impl := c.(*cacheImpl[string])
	impl.mu.Lock()
	defer impl.mu.Unlock()
	assert.Equal(t, 0, impl.expiry.Len())
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c := newTestCache(t, &Options{TTL: time.Minute, SweepInterval: time.Hour})
	impl := c.(*cacheImpl[string])

	c.Put("a", "1")
	c.Put("b", "2")

	assert.Equal(t, 0, impl.sweep(time.Now()))
	assert.Equal(t, 2, impl.sweep(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, c.Len())
}

func TestBackgroundSweep(t *testing.T) {
	c := newTestCache(t, &Options{TTL: 30 * time.Millisecond, SweepInterval: 10 * time.Millisecond})

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}

	// no reads: the entries must disappear through the sweeper alone
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewCache[string](&Options{SweepInterval: time.Millisecond})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t, &Options{MaxSize: 50})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (w*200+i)%100)
				c.Put(key, key)
				if v, ok := c.Get(key); ok {
					assert.Equal(t, key, v)
				}
				if i%50 == 0 {
					c.Invalidate("k1")
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestPutIfGeneration(t *testing.T) {
	t.Run("unchanged generation stores", func(t *testing.T) {
		c := newTestCache(t, nil)
		gen := c.Generation("a")
		assert.True(t, c.PutIfGeneration("a", gen, "loaded"))

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, "loaded", v)
	})

	t.Run("put in between rejects", func(t *testing.T) {
		c := newTestCache(t, nil)
		gen := c.Generation("a")
		c.Put("a", "new")

		assert.False(t, c.PutIfGeneration("a", gen, "old"))
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, "new", v)
	})

	t.Run("remove in between rejects", func(t *testing.T) {
		c := newTestCache(t, nil)
		gen := c.Generation("a")
		c.Remove("a") // key was never cached, the generation still advances

		assert.False(t, c.PutIfGeneration("a", gen, "old"))
		_, ok := c.Get("a")
		assert.False(t, ok)
	})

	t.Run("invalidate in between rejects", func(t *testing.T) {
		c := newTestCache(t, nil)
		gen := c.Generation("dir/a")
		c.Invalidate("dir/")

		assert.False(t, c.PutIfGeneration("dir/a", gen, "old"))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("purge in between rejects", func(t *testing.T) {
		c := newTestCache(t, nil)
		gen := c.Generation("a")
		c.Purge()

		assert.False(t, c.PutIfGeneration("a", gen, "old"))
	})

	t.Run("conditional put does not advance generation", func(t *testing.T) {
		c := newTestCache(t, nil)
		gen := c.Generation("a")
		require.True(t, c.PutIfGeneration("a", gen, "x"))
		assert.Equal(t, gen, c.Generation("a"))
	})
}
