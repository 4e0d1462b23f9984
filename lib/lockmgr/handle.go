package lockmgr

import (
	"sync/atomic"
	"time"
)

// LockHandle represents an acquired lock. It must be released exactly once by the
// code that acquired it, preferably with defer right after a successful Acquire:
//
//	handle, err := locks.Acquire(ctx, "sessions/42.json", owner, 30*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer handle.Release()
//
// Release is idempotent. A reentrant handle (returned when the owner already held
// the lock) does not release anything, the outermost handle owns the lock.
type LockHandle struct {
	Path       string
	Owner      string
	AcquiredAt time.Time
	Reentrant  bool

	release  func() error
	released atomic.Bool
}

// NewLockHandle creates a handle whose first Release calls release.
// It is exported for ILockManager implementations outside this package (e.g. test doubles).
func NewLockHandle(path, owner string, reentrant bool, release func() error) *LockHandle {
	return &LockHandle{
		Path:       path,
		Owner:      owner,
		AcquiredAt: time.Now(),
		Reentrant:  reentrant,
		release:    release,
	}
}

// Release releases the lock. Calling it more than once is safe.
func (h *LockHandle) Release() error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if h.Reentrant || h.release == nil {
		return nil
	}
	return h.release()
}

// Released reports whether Release was called.
func (h *LockHandle) Released() bool {
	return h.released.Load()
}
