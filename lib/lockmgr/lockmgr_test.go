package lockmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (ILockManager, *Registry, string) {
	t.Helper()
	dir := t.TempDir()
	registry := NewRegistry()
	return NewLockManager(dir, registry), registry, dir
}

// waitUntilWaiting blocks until owner is registered as waiting for path
func waitUntilWaiting(t *testing.T, registry *Registry, owner, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		p, ok := registry.WaitingFor(owner)
		return ok && p == path
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAcquireAndRelease(t *testing.T) {
	locks, registry, dir := newTestManager(t)
	ctx := context.Background()

	handle, err := locks.Acquire(ctx, "proj/x.json", "owner-a", time.Second)
	require.NoError(t, err)
	assert.False(t, handle.Reentrant)

	// the lock file and its parent directory were created
	_, err = os.Stat(filepath.Join(dir, "proj", "x.json"+LockFileSuffix))
	assert.NoError(t, err)

	rec, held := locks.Holder("proj/x.json")
	require.True(t, held)
	assert.Equal(t, "owner-a", rec.Owner)
	assert.Equal(t, []string{"proj/x.json"}, registry.HeldBy("owner-a"))

	require.NoError(t, locks.Release(handle))
	_, held = locks.Holder("proj/x.json")
	assert.False(t, held)

	// releasing again is a no-op
	assert.NoError(t, locks.Release(handle))
	assert.NoError(t, handle.Release())
	assert.True(t, handle.Released())
	assert.NoError(t, locks.Release(nil))
}

func TestAcquireInvalidArguments(t *testing.T) {
	locks, _, _ := newTestManager(t)

	_, err := locks.Acquire(context.Background(), "", "owner", time.Second)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = locks.Acquire(context.Background(), "x", "", time.Second)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestReentrancy(t *testing.T) {
	locks, _, _ := newTestManager(t)
	ctx := context.Background()

	outer, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)

	start := time.Now()
	inner, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)
	assert.True(t, inner.Reentrant)
	assert.Less(t, time.Since(start), InitialBackoff, "reentrant acquire must not block")

	// releasing the inner handle keeps the lock
	require.NoError(t, inner.Release())
	rec, held := locks.Holder("a.json")
	require.True(t, held)
	assert.Equal(t, "owner-a", rec.Owner)

	require.NoError(t, outer.Release())
	_, held = locks.Holder("a.json")
	assert.False(t, held)
}

func TestConflictWithoutTimeout(t *testing.T) {
	locks, _, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)
	defer handle.Release()

	_, err = locks.Acquire(ctx, "a.json", "owner-b", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockConflict))

	var lockErr *Error
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, "owner-a", lockErr.Holder)
}

func TestTimeoutBound(t *testing.T) {
	locks, registry, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)
	defer handle.Release()

	timeout := 300 * time.Millisecond
	start := time.Now()
	_, err = locks.Acquire(ctx, "a.json", "owner-b", timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.GreaterOrEqual(t, elapsed, timeout-10*time.Millisecond)
	assert.Less(t, elapsed, timeout+250*time.Millisecond)

	// the wait registration was cleaned up
	_, waiting := registry.WaitingFor("owner-b")
	assert.False(t, waiting)
}

func TestWaiterAcquiresAfterRelease(t *testing.T) {
	locks, _, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = handle.Release()
	}()

	got, err := locks.Acquire(ctx, "a.json", "owner-b", 3*time.Second)
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, "owner-b", got.Owner)
}

func TestContextCancellation(t *testing.T) {
	locks, _, _ := newTestManager(t)

	handle, err := locks.Acquire(context.Background(), "a.json", "owner-a", time.Second)
	require.NoError(t, err)
	defer handle.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = locks.Acquire(ctx, "a.json", "owner-b", 5*time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMutualExclusion(t *testing.T) {
	locks, _, _ := newTestManager(t)
	ctx := context.Background()

	const workers = 8
	const rounds = 5

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		total   int
		wg      sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := NewOwnerID()
			for r := 0; r < rounds; r++ {
				handle, err := locks.Acquire(ctx, "shared.json", owner, 10*time.Second)
				if !assert.NoError(t, err) {
					return
				}

				n := active.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				total++ // protected by the lock
				time.Sleep(time.Millisecond)
				active.Add(-1)

				assert.NoError(t, handle.Release())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, workers*rounds, total)
}

func TestDeadlockDetection(t *testing.T) {
	t.Run("TwoCycle", func(t *testing.T) {
		locks, registry, _ := newTestManager(t)
		ctx := context.Background()

		a1, err := locks.Acquire(ctx, "p1", "owner-a", time.Second)
		require.NoError(t, err)
		b2, err := locks.Acquire(ctx, "p2", "owner-b", time.Second)
		require.NoError(t, err)

		// A waits for P2
		done := make(chan error, 1)
		go func() {
			h, err := locks.Acquire(ctx, "p2", "owner-a", 5*time.Second)
			if err == nil {
				defer h.Release()
			}
			done <- err
		}()
		waitUntilWaiting(t, registry, "owner-a", "p2")

		// B wanting P1 closes the cycle and fails fast
		start := time.Now()
		_, err = locks.Acquire(ctx, "p1", "owner-b", 5*time.Second)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPotentialDeadlock))
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		var lockErr *Error
		require.True(t, errors.As(err, &lockErr))
		assert.Equal(t, []string{"owner-b", "owner-a", "owner-b"}, lockErr.Cycle)

		// B backs off, A proceeds
		require.NoError(t, b2.Release())
		assert.NoError(t, <-done)
		require.NoError(t, a1.Release())
	})

	t.Run("ThreeCycle", func(t *testing.T) {
		locks, registry, _ := newTestManager(t)
		ctx := context.Background()

		var handles []*LockHandle
		for _, p := range []struct{ path, owner string }{{"p1", "a"}, {"p2", "b"}, {"p3", "c"}} {
			h, err := locks.Acquire(ctx, p.path, p.owner, time.Second)
			require.NoError(t, err)
			handles = append(handles, h)
		}

		errs := make(chan error, 2)
		wait := func(path, owner string) {
			h, err := locks.Acquire(ctx, path, owner, 5*time.Second)
			if err == nil {
				defer h.Release()
			}
			errs <- err
		}
		go wait("p2", "a")
		waitUntilWaiting(t, registry, "a", "p2")
		go wait("p3", "b")
		waitUntilWaiting(t, registry, "b", "p3")

		_, err := locks.Acquire(ctx, "p1", "c", 5*time.Second)
		assert.True(t, errors.Is(err, ErrPotentialDeadlock))

		// c releases p3 -> b continues and releases p2 -> a continues
		require.NoError(t, handles[2].Release())
		assert.NoError(t, <-errs)
		require.NoError(t, handles[1].Release())
		assert.NoError(t, <-errs)
		require.NoError(t, handles[0].Release())
	})

	t.Run("NoCycleWhenHolderIsNotWaiting", func(t *testing.T) {
		locks, _, _ := newTestManager(t)
		ctx := context.Background()

		a1, err := locks.Acquire(ctx, "p1", "owner-a", time.Second)
		require.NoError(t, err)
		defer a1.Release()
		b2, err := locks.Acquire(ctx, "p2", "owner-b", time.Second)
		require.NoError(t, err)
		defer b2.Release()

		_, err = locks.Acquire(ctx, "p1", "owner-b", 100*time.Millisecond)
		assert.True(t, errors.Is(err, ErrLockTimeout))
	})
}

func TestSharedRegistry(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	first := NewLockManager(dir, registry)
	second := NewLockManager(dir, registry)
	ctx := context.Background()

	handle, err := first.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)

	_, err = second.Acquire(ctx, "a.json", "owner-b", 0)
	assert.True(t, errors.Is(err, ErrLockConflict))

	// the same owner is reentrant across managers sharing the registry
	inner, err := second.Acquire(ctx, "a.json", "owner-a", 0)
	require.NoError(t, err)
	assert.True(t, inner.Reentrant)

	require.NoError(t, handle.Release())
	assert.Equal(t, 0, registry.Len())
}

func TestSeparateRegistriesExcludeViaLockFile(t *testing.T) {
	dir := t.TempDir()
	first := NewLockManager(dir, nil)
	second := NewLockManager(dir, nil)
	ctx := context.Background()

	handle, err := first.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)

	_, err = second.Acquire(ctx, "a.json", "owner-b", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockConflict))

	require.NoError(t, handle.Release())

	h2, err := second.Acquire(ctx, "a.json", "owner-b", 0)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestStaleHandleDoesNotReleaseNewLock(t *testing.T) {
	locks, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := locks.Acquire(ctx, "a.json", "owner-a", time.Second)
	require.NoError(t, err)
	defer second.Release()

	// a copy of the released handle must not free the new acquisition
	stale := NewLockHandle(first.Path, first.Owner, false, first.release)
	require.NoError(t, stale.Release())

	_, held := locks.Holder("a.json")
	assert.True(t, held)
}

func TestReservedPathIsBusy(t *testing.T) {
	locks, registry, _ := newTestManager(t)
	ctx := context.Background()

	// owner-x is between the holder check and the file lock
	registry.mu.Lock()
	registry.reserve("a.json", "owner-x")
	registry.mu.Unlock()

	_, err := locks.Acquire(ctx, "a.json", "owner-b", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockConflict))
	var lockErr *Error
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, "owner-x", lockErr.Holder)

	// a waiter gets the lock once the reservation is gone
	go func() {
		time.Sleep(20 * time.Millisecond)
		registry.mu.Lock()
		registry.unreserve("a.json")
		registry.mu.Unlock()
	}()
	handle, err := locks.Acquire(ctx, "a.json", "owner-b", 2*time.Second)
	require.NoError(t, err)
	defer handle.Release()

	rec, held := locks.Holder("a.json")
	require.True(t, held)
	assert.Equal(t, "owner-b", rec.Owner)
}

func TestIOFailureClearsReservation(t *testing.T) {
	// the lock directory is a regular file, no lock file can be created below it
	lockDir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(lockDir, []byte("x"), 0o644))
	registry := NewRegistry()
	locks := NewLockManager(lockDir, registry)

	_, err := locks.Acquire(context.Background(), "a.json", "owner-a", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIOFailure))

	registry.mu.Lock()
	assert.Empty(t, registry.pending)
	registry.mu.Unlock()
	assert.Equal(t, 0, registry.Len())
}

func TestHeldUnder(t *testing.T) {
	locks, registry, _ := newTestManager(t)
	ctx := context.Background()

	for _, path := range []string{"team/b.json", "team/sub/a.json", "teammate.json", "other.json"} {
		handle, err := locks.Acquire(ctx, path, "owner-a", time.Second)
		require.NoError(t, err)
		defer handle.Release()
	}

	assert.Equal(t, []string{"team/b.json", "team/sub/a.json"}, registry.HeldUnder("team/"))
	assert.Empty(t, registry.HeldUnder("nothing/"))
}
