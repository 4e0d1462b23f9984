// Package txn coordinates units of work that need exclusive access to several
// documents at once.
//
// Execute acquires the lock of every involved path through an
// lockmgr.ILockManager, runs the unit of work and releases the locks again.
// All transactions acquire their locks in the same canonical order
// (deduplicated, lexicographically sorted), which rules out lock-ordering
// deadlocks between transactions. The unit of work itself is not rolled back
// on failure: a transaction only provides mutual exclusion, not atomicity of
// multi-document writes.
//
// Usage:
//
//	coord := txn.NewCoordinator(locks, 30*time.Second)
//	total, err := txn.Execute(ctx, coord, owner, []string{"a.json", "b.json"},
//	    func(ctx context.Context, tx *txn.Transaction) (int, error) {
//	        // read and write a.json and b.json
//	        return 42, nil
//	    })
package txn
