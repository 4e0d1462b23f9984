package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a per-path lock manager.
type ILockManager interface {
	// Acquire acquires the lock for path on behalf of owner.
	// If owner already holds the lock a reentrant handle is returned immediately.
	// If another owner holds the lock, Acquire retries with exponential backoff until timeout
	// elapses (ErrLockTimeout). A timeout <= 0 means no retry: the call fails with ErrLockConflict.
	// If waiting would close a cycle in the wait-for graph, Acquire fails fast with ErrPotentialDeadlock.
	Acquire(ctx context.Context, path, owner string, timeout time.Duration) (handle *LockHandle, err error)

	// Release releases the lock represented by handle. Releasing twice is a no-op.
	Release(handle *LockHandle) (err error)

	// Holder returns the active lock record of path, if any.
	Holder(path string) (record LockRecord, held bool)
}
