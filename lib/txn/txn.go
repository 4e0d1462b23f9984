package txn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("txn")

// Transaction is the context of one unit of work running under the locks of all its paths.
// It only lives while the unit of work runs.
type Transaction struct {
	ID        string    // random transaction id (for logging)
	Owner     string    // owner all locks are acquired for
	Paths     []string  // locked paths in acquisition order (deduplicated, sorted)
	StartedAt time.Time // time all locks were held

	handles []*lockmgr.LockHandle
}

// Holds reports whether path is one of the locked paths of the transaction.
func (t *Transaction) Holds(path string) bool {
	i := sort.SearchStrings(t.Paths, path)
	return i < len(t.Paths) && t.Paths[i] == path
}

// Coordinator runs units of work under the locks of a set of paths.
//
// Thread-safety: A Coordinator is stateless apart from its lock manager and safe for concurrent use.
type Coordinator struct {
	locks   lockmgr.ILockManager
	timeout time.Duration
}

// NewCoordinator creates a coordinator that acquires every path through locks, waiting at most timeout per path.
func NewCoordinator(locks lockmgr.ILockManager, timeout time.Duration) *Coordinator {
	return &Coordinator{locks: locks, timeout: timeout}
}

// Execute acquires the locks of all paths for owner, runs fn and releases the locks again.
//
// Paths are deduplicated and acquired in lexicographic order, so two transactions over
// overlapping path sets can not deadlock each other. Locks are released in reverse order,
// regardless of whether fn returns, fails or panics (the panic is propagated).
// If an acquisition fails, the locks acquired so far are released and the error is returned
// without calling fn.
func Execute[R any](ctx context.Context, c *Coordinator, owner string, paths []string, fn func(ctx context.Context, tx *Transaction) (R, error)) (result R, err error) {
	tx := &Transaction{
		ID:    uuid.NewString(),
		Owner: owner,
		Paths: canonicalOrder(paths),
	}

	// release everything acquired so far, in reverse order, also on panic
	defer func() {
		if relErr := tx.releaseAll(); relErr != nil {
			Logger.Warningf("txn %s: failed to release locks: %v", tx.ID, relErr)
			if err == nil {
				err = relErr
			}
		}
	}()

	for _, path := range tx.Paths {
		handle, acqErr := c.locks.Acquire(ctx, path, owner, c.timeout)
		if acqErr != nil {
			Logger.Debugf("txn %s: failed to lock %s after %d of %d paths: %v",
				tx.ID, path, len(tx.handles), len(tx.Paths), acqErr)
			return result, fmt.Errorf("txn %s: lock %s: %w", tx.ID, path, acqErr)
		}
		tx.handles = append(tx.handles, handle)
	}

	tx.StartedAt = time.Now()
	Logger.Debugf("txn %s: owner %s holds %d locks", tx.ID, owner, len(tx.handles))

	return fn(ctx, tx)
}

// releaseAll releases all acquired handles in reverse acquisition order.
// Every handle is released even if an earlier release fails.
func (t *Transaction) releaseAll() error {
	var errs []error
	for i := len(t.handles) - 1; i >= 0; i-- {
		if err := t.handles[i].Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", t.handles[i].Path, err))
		}
	}
	t.handles = nil
	return errors.Join(errs...)
}

// canonicalOrder returns the deduplicated, lexicographically sorted copy of paths
func canonicalOrder(paths []string) []string {
	sorted := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)
	return sorted
}
