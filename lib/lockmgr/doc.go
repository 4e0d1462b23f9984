// Package lockmgr implements per-path mutual exclusion for the document store.
// Locks are local to the process: an in-memory Registry decides ownership and
// every held lock is additionally backed by an exclusive OS level lock on a
// lock file, so cooperating processes on the same directory do not step on
// each other either.
//
// Core Functionality:
//   - Lock acquisition on behalf of an explicit owner ID
//   - Reentrancy: an owner acquiring a path it already holds succeeds immediately
//   - Bounded waiting with exponential backoff (50ms, x1.5, capped at 1s)
//   - Deadlock detection before blocking
//   - Idempotent release through LockHandle
//
// Owners:
//
//	Ownership is not derived from goroutines. Every task that takes locks passes
//	its own owner ID (see NewOwnerID). An owner is expected to block on at most
//	one Acquire at a time, which is what makes the wait-for graph a set of chains.
//
// Deadlock Detection:
//
//	Before an owner starts waiting for a path, the wait-for chain is followed
//	from the current holder of that path: holder -> the path the holder is
//	waiting for -> its holder -> ... If the chain leads back to the requesting
//	owner, Acquire fails immediately with ErrPotentialDeadlock instead of
//	blocking. This catches the 2-cycle "A holds P1 and wants P2, B holds P2 and
//	wants P1" as well as longer cycles. Only the owner that would close the
//	cycle fails, the others keep waiting and continue once it releases its locks.
//
// Acquisition Algorithm:
//
//	Every attempt runs under the registry mutex:
//
//	- If the owner already holds the path, a reentrant handle is returned.
//	- If another owner holds the path, the attempt is busy.
//	- Otherwise the parent directories and the lock file are created and an
//	  exclusive non-blocking flock is taken. If another process holds the file
//	  lock, the attempt is busy. On success the owner is registered as holder.
//
//	Busy attempts are retried until the timeout elapses (ErrLockTimeout). With
//	a timeout <= 0 a busy first attempt fails with ErrLockConflict.
//
// Usage Example:
//
//	registry := lockmgr.NewRegistry() // once per process
//	locks := lockmgr.NewLockManager("data", registry)
//	owner := lockmgr.NewOwnerID()
//
//	handle, err := locks.Acquire(ctx, "sessions/42.json", owner, 30*time.Second)
//	switch {
//	case errors.Is(err, lockmgr.ErrPotentialDeadlock):
//	    // release own locks and retry later
//	case err != nil:
//	    return err
//	}
//	defer handle.Release()
package lockmgr
