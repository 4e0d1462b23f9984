// Package store is the facade of the document store. It persists JSON documents
// as files below a base directory and combines the other libraries into one API:
//
//   - Reads are served from a TTL+LRU cache (package cache) and fall back to
//     the disk. The cache holds encoded documents, so every read decodes an
//     independent copy.
//   - Writes snapshot the previous state of a document (package history),
//     stamp a new version, replace the file atomically (package fileio) and
//     refresh the cache.
//   - Lock and ExecuteInTransaction give callers opt-in exclusivity over one or
//     several documents (packages lockmgr and txn). Writes never lock
//     implicitly.
//
// Paths are slash separated and relative to the base directory. They are
// cleaned and rejected with RetCInvalidPath if they would leave the base
// directory. Lock files (<path>.lock) live next to the documents and are
// hidden from ListFiles, as are temporary files of interrupted writes.
//
// Error handling follows two conventions: the document operations (Read,
// Write, Delete, ...) report failure through their boolean result and log the
// cause, while the operations that hand out resources (NewStore, Lock,
// ExecuteInTransaction, History, ReadSnapshot) return a *Error or the error of
// the lock manager.
//
// Usage:
//
//	s, err := store.NewStore(common.DefaultStoreConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	store.Write(ctx, s, "users/42.json", User{Name: "Ada"})
//	user, ok := store.Read[User](ctx, s, "users/42.json")
//
//	owner := lockmgr.NewOwnerID()
//	_, err = store.ExecuteInTransaction(ctx, s, owner, []string{"a.json", "b.json"},
//	    func(ctx context.Context, tx *txn.Transaction) (struct{}, error) {
//	        // read-modify-write a.json and b.json
//	        return struct{}{}, nil
//	    })
package store
