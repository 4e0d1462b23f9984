package lockmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofrs/flock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	retry "github.com/sethvargo/go-retry"
)

var Logger = logger.GetLogger("lockmgr")

const (
	// LockFileSuffix is appended to the path of a document to get its lock file.
	LockFileSuffix = ".lock"

	dirPerm = 0o755
)

var (
	metricAcquired  = metrics.GetOrCreateCounter("ddoc_lock_acquired_total")
	metricReentrant = metrics.GetOrCreateCounter("ddoc_lock_reentrant_total")
	metricTimeouts  = metrics.GetOrCreateCounter("ddoc_lock_timeouts_total")
	metricConflicts = metrics.GetOrCreateCounter("ddoc_lock_conflicts_total")
	metricDeadlocks = metrics.GetOrCreateCounter("ddoc_lock_deadlocks_total")
	metricWait      = metrics.GetOrCreateHistogram("ddoc_lock_wait_seconds")
)

// errBusy signals a failed attempt because the lock is held by someone else
var errBusy = errors.New("lock busy")

type attemptState int

const (
	stateAcquired attemptState = iota
	stateReentrant
	stateBusy
)

type lockMgrImpl struct {
	lockDir  string
	registry *Registry
	files    *xsync.MapOf[string, *flock.Flock] // path -> lock file handle, reused across acquisitions
}

// NewLockManager creates a lock manager that places its lock files below lockDir.
// The lock file of path is <lockDir>/<path>.lock, parent directories are created on demand.
//
// All lock managers that should exclude each other inside the process must share the registry.
// A nil registry creates a private one.
func NewLockManager(lockDir string, registry *Registry) ILockManager {
	if registry == nil {
		registry = NewRegistry()
	}
	return &lockMgrImpl{
		lockDir:  lockDir,
		registry: registry,
		files:    xsync.NewMapOf[string, *flock.Flock](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.ILockManager)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) Acquire(ctx context.Context, path, owner string, timeout time.Duration) (*LockHandle, error) {
	if path == "" || owner == "" {
		return nil, &Error{Code: CodeInvalidArgument, Path: path, Owner: owner}
	}

	start := time.Now()

	// first attempt without registering as waiter
	handle, state, holder, err := lm.attempt(path, owner)
	if err != nil {
		return nil, err
	}
	if state != stateBusy {
		return handle, nil
	}

	// no retry path
	if timeout <= 0 {
		metricConflicts.Inc()
		return nil, &Error{Code: CodeConflict, Path: path, Owner: owner, Holder: holder}
	}

	// check for a deadlock before blocking, the wait registration is removed on every exit path
	if cycle := lm.registry.beginWait(owner, path); cycle != nil {
		metricDeadlocks.Inc()
		Logger.Warningf("potential deadlock: owner %s waiting for %s would close cycle %v", owner, path, cycle)
		return nil, &Error{Code: CodePotentialDeadlock, Path: path, Owner: owner, Holder: holder, Cycle: cycle}
	}
	defer lm.registry.endWait(owner, path)

	Logger.Debugf("owner %s waiting for %s (held by %q, timeout %s)", owner, path, holder, timeout)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = retry.Do(waitCtx, newAcquireBackoff(timeout), func(_ context.Context) error {
		h, s, hol, err := lm.attempt(path, owner)
		if err != nil {
			return err
		}
		if s == stateBusy {
			holder = hol
			return retry.RetryableError(errBusy)
		}
		handle = h
		return nil
	})
	metricWait.UpdateDuration(start)

	switch {
	case err == nil:
		return handle, nil
	case ctx.Err() != nil:
		// the caller gave up, this is not a timeout of the lock
		return nil, ctx.Err()
	case errors.Is(err, errBusy), errors.Is(err, context.DeadlineExceeded):
		metricTimeouts.Inc()
		Logger.Debugf("owner %s timed out after %s waiting for %s", owner, time.Since(start), path)
		return nil, &Error{Code: CodeTimeout, Path: path, Owner: owner, Holder: holder}
	default:
		return nil, err
	}
}

func (lm *lockMgrImpl) Release(handle *LockHandle) error {
	if handle == nil {
		return nil
	}
	return handle.Release()
}

func (lm *lockMgrImpl) Holder(path string) (LockRecord, bool) {
	return lm.registry.Holder(path)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// attempt tries to acquire path once without blocking.
// On stateBusy the current holder is returned (empty if the lock is held by another process).
//
// Thread-safety: The holder check and the claim run under the registry mutex. In between, the
// path is reserved for owner, so the file lock is taken without the mutex and no other owner
// sharing the registry can race for the same path.
func (lm *lockMgrImpl) attempt(path, owner string) (*LockHandle, attemptState, string, error) {
	if handle, state, holder, done := lm.checkAndReserve(path, owner); done {
		return handle, state, holder, nil
	}

	file, locked, err := lm.tryLockFile(path)

	lm.registry.mu.Lock()
	defer lm.registry.mu.Unlock()
	lm.registry.unreserve(path)

	if err != nil {
		return nil, stateBusy, "", &Error{Code: CodeIOFailure, Path: path, Owner: owner, Err: err}
	}
	if !locked {
		// held by another process
		return nil, stateBusy, "", nil
	}

	rec := lm.registry.claim(path, owner, file)
	token := rec.token
	metricAcquired.Inc()

	handle := NewLockHandle(path, owner, false, func() error {
		return lm.release(path, token)
	})
	handle.AcquiredAt = rec.AcquiredAt
	return handle, stateAcquired, owner, nil
}

// checkAndReserve resolves the attempt if path is held or reserved (done = true).
// Otherwise path is reserved for owner and the caller must take the file lock and unreserve.
func (lm *lockMgrImpl) checkAndReserve(path, owner string) (*LockHandle, attemptState, string, bool) {
	lm.registry.mu.Lock()
	defer lm.registry.mu.Unlock()

	if rec, held := lm.registry.holders[path]; held {
		if rec.Owner == owner {
			metricReentrant.Inc()
			return NewLockHandle(path, owner, true, nil), stateReentrant, owner, true
		}
		return nil, stateBusy, rec.Owner, true
	}
	if reserver, reserved := lm.registry.pending[path]; reserved {
		return nil, stateBusy, reserver, true
	}

	lm.registry.reserve(path, owner)
	return nil, stateBusy, "", false
}

// tryLockFile takes the OS level lock of path without blocking.
func (lm *lockMgrImpl) tryLockFile(path string) (*flock.Flock, bool, error) {
	file, err := lm.lockFile(path)
	if err != nil {
		return nil, false, err
	}
	locked, err := file.TryLock()
	if err != nil {
		return nil, false, err
	}
	return file, locked, nil
}

// release frees the lock of path if it still belongs to the acquisition identified by token.
// The file lock is released under the registry mutex: once the path is free in the registry,
// the next attempt may reuse the same lock file handle.
func (lm *lockMgrImpl) release(path string, token uint64) error {
	lm.registry.mu.Lock()
	defer lm.registry.mu.Unlock()

	rec, ok := lm.registry.unclaim(path, token)
	if !ok {
		return nil
	}
	if rec.file != nil {
		if err := rec.file.Unlock(); err != nil {
			Logger.Errorf("failed to unlock lock file of %s: %v", path, err)
			return &Error{Code: CodeIOFailure, Path: path, Owner: rec.Owner, Err: err}
		}
	}
	return nil
}

// lockFile returns the (cached) file lock of path and makes sure its parent directory exists.
func (lm *lockMgrImpl) lockFile(path string) (*flock.Flock, error) {
	name := filepath.Join(lm.lockDir, filepath.FromSlash(path)+LockFileSuffix)
	if err := os.MkdirAll(filepath.Dir(name), dirPerm); err != nil {
		return nil, err
	}
	file, _ := lm.files.LoadOrCompute(path, func() *flock.Flock {
		return flock.New(name)
	})
	return file, nil
}
