package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLocks is a lock manager double that records the order of acquisitions and releases
type recordingLocks struct {
	mu     sync.Mutex
	events []string
	failOn string
}

func (r *recordingLocks) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingLocks) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingLocks) Acquire(_ context.Context, path, owner string, _ time.Duration) (*lockmgr.LockHandle, error) {
	if path == r.failOn {
		r.record("fail " + path)
		return nil, &lockmgr.Error{Code: lockmgr.CodeTimeout, Path: path, Owner: owner}
	}
	r.record("acquire " + path)
	return lockmgr.NewLockHandle(path, owner, false, func() error {
		r.record("release " + path)
		return nil
	}), nil
}

func (r *recordingLocks) Release(handle *lockmgr.LockHandle) error {
	return handle.Release()
}

func (r *recordingLocks) Holder(string) (lockmgr.LockRecord, bool) {
	return lockmgr.LockRecord{}, false
}

func TestCanonicalOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, canonicalOrder([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, canonicalOrder(nil))
}

func TestExecuteAcquiresInOrderAndReleasesInReverse(t *testing.T) {
	locks := &recordingLocks{}
	c := NewCoordinator(locks, time.Second)

	result, err := Execute(context.Background(), c, "owner", []string{"c", "a", "b", "a"},
		func(_ context.Context, tx *Transaction) (string, error) {
			locks.record("work")
			assert.Equal(t, []string{"a", "b", "c"}, tx.Paths)
			assert.True(t, tx.Holds("b"))
			assert.False(t, tx.Holds("d"))
			assert.NotEmpty(t, tx.ID)
			return "done", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{
		"acquire a", "acquire b", "acquire c",
		"work",
		"release c", "release b", "release a",
	}, locks.Events())
}

func TestExecuteReleasesOnError(t *testing.T) {
	locks := &recordingLocks{}
	c := NewCoordinator(locks, time.Second)
	workErr := errors.New("work failed")

	_, err := Execute(context.Background(), c, "owner", []string{"b", "a"},
		func(context.Context, *Transaction) (int, error) {
			return 0, workErr
		})

	require.ErrorIs(t, err, workErr)
	assert.Equal(t, []string{"acquire a", "acquire b", "release b", "release a"}, locks.Events())
}

func TestExecuteReleasesOnPanic(t *testing.T) {
	locks := &recordingLocks{}
	c := NewCoordinator(locks, time.Second)

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = Execute(context.Background(), c, "owner", []string{"a", "b"},
			func(context.Context, *Transaction) (int, error) {
				panic("boom")
			})
	})
	assert.Equal(t, []string{"acquire a", "acquire b", "release b", "release a"}, locks.Events())
}

func TestExecuteAcquisitionFailure(t *testing.T) {
	locks := &recordingLocks{failOn: "b"}
	c := NewCoordinator(locks, time.Second)
	called := false

	_, err := Execute(context.Background(), c, "owner", []string{"c", "b", "a"},
		func(context.Context, *Transaction) (int, error) {
			called = true
			return 0, nil
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, lockmgr.ErrLockTimeout)
	assert.False(t, called, "unit of work must not run without all locks")
	assert.Equal(t, []string{"acquire a", "fail b", "release a"}, locks.Events())
}

func TestOverlappingTransactionsDoNotDeadlock(t *testing.T) {
	locks := lockmgr.NewLockManager(t.TempDir(), lockmgr.NewRegistry())
	c := NewCoordinator(locks, 5*time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
	)
	pathSets := [][]string{
		{"x.json", "y.json"},
		{"y.json", "x.json"},
		{"z.json", "x.json", "y.json"},
	}

	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner-%d", w)
			for i := 0; i < 5; i++ {
				_, err := Execute(context.Background(), c, owner, pathSets[(w+i)%len(pathSets)],
					func(context.Context, *Transaction) (struct{}, error) {
						mu.Lock()
						counter++
						mu.Unlock()
						time.Sleep(time.Millisecond)
						return struct{}{}, nil
					})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 30, counter)
	for _, p := range []string{"x.json", "y.json", "z.json"} {
		_, held := locks.Holder(p)
		assert.False(t, held, "%s must be released", p)
	}
}
