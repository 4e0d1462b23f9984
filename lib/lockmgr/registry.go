package lockmgr

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// LockRecord describes an active lock.
type LockRecord struct {
	Path       string
	Owner      string
	AcquiredAt time.Time

	token uint64       // identifies the acquisition, stale handles can not release a newer lock
	file  *flock.Flock // OS level lock backing this record
}

// Registry holds the ownership state of all locks of a process:
// which owner holds which path, and which path every blocked owner is waiting for.
//
// A Registry is created once (typically at startup) and passed to every lock manager
// that should coordinate with the others. Lock managers that do not share a registry
// only exclude each other through the OS level file locks.
//
// Thread-safety: All methods are thread-safe.
type Registry struct {
	mu        sync.Mutex
	holders   map[string]*LockRecord // path -> active lock
	pending   map[string]string      // path -> owner currently taking the file lock of path
	waiting   map[string]string      // owner -> path the owner is blocked on
	nextToken uint64
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		holders: make(map[string]*LockRecord),
		pending: make(map[string]string),
		waiting: make(map[string]string),
	}
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Holder returns a copy of the active lock record of path.
func (r *Registry) Holder(path string) (LockRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.holders[path]
	if !ok {
		return LockRecord{}, false
	}
	return *rec, true
}

// HeldBy returns the sorted list of paths held by owner.
func (r *Registry) HeldBy(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0)
	for path, rec := range r.holders {
		if rec.Owner == owner {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// WaitingFor returns the path owner is currently blocked on.
func (r *Registry) WaitingFor(owner string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, ok := r.waiting[owner]
	return path, ok
}

// HeldUnder returns the sorted list of held paths that start with prefix.
func (r *Registry) HeldUnder(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0)
	for path := range r.holders {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of active locks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}

// --------------------------------------------------------------------------
// Wait-for graph (callers must hold r.mu unless noted otherwise)
// --------------------------------------------------------------------------

// beginWait registers that owner is about to block on path.
// If blocking would close a cycle in the wait-for graph, nothing is registered
// and the owners forming the cycle are returned.
//
// Thread-safety: acquires r.mu.
func (r *Registry) beginWait(owner, path string) (cycle []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cycle = r.findCycle(owner, path); cycle != nil {
		return cycle
	}
	r.waiting[owner] = path
	return nil
}

// endWait removes the wait registration of owner (if it still refers to path).
//
// Thread-safety: acquires r.mu.
func (r *Registry) endWait(owner, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.waiting[owner] == path {
		delete(r.waiting, owner)
	}
}

// findCycle follows the wait-for chain starting at the holder of path:
// holder -> path the holder waits for -> holder of that path -> ...
// The chain ends at an owner that is not blocked or at a free path. If it reaches owner,
// owner waiting for path would close a cycle. The classic case is the 2-cycle
// "A holds P1 and wants P2 while B holds P2 and wants P1", longer cycles are found the same way.
//
// Since every owner waits for at most one path at a time, the wait-for graph
// restricted to the chain is a simple path and the walk is linear in its length.
func (r *Registry) findCycle(owner, path string) []string {
	chain := []string{owner}
	visited := make(map[string]struct{})
	current := path

	for {
		rec, held := r.holders[current]
		if !held {
			// free or only reserved: the reserving owner is not blocked yet
			return nil
		}
		holder := rec.Owner
		if holder == owner {
			return append(chain, owner)
		}
		if _, seen := visited[holder]; seen {
			// a cycle that does not involve owner, it is not ours to break
			return nil
		}
		visited[holder] = struct{}{}
		chain = append(chain, holder)

		next, blocked := r.waiting[holder]
		if !blocked {
			return nil
		}
		current = next
	}
}

// --------------------------------------------------------------------------
// Ownership (callers must hold r.mu)
// --------------------------------------------------------------------------

// reserve marks path as being acquired by owner. While reserved, the path is busy for everyone else.
func (r *Registry) reserve(path, owner string) {
	r.pending[path] = owner
}

// unreserve removes the reservation of path.
func (r *Registry) unreserve(path string) {
	delete(r.pending, path)
}

// claim registers owner as holder of path.
func (r *Registry) claim(path, owner string, file *flock.Flock) *LockRecord {
	r.nextToken++
	rec := &LockRecord{
		Path:       path,
		Owner:      owner,
		AcquiredAt: time.Now(),
		token:      r.nextToken,
		file:       file,
	}
	r.holders[path] = rec
	return rec
}

// unclaim removes the lock of path if it still belongs to the acquisition identified by token.
func (r *Registry) unclaim(path string, token uint64) (*LockRecord, bool) {
	rec, ok := r.holders[path]
	if !ok || rec.token != token {
		return nil, false
	}
	delete(r.holders, path)
	return rec, true
}
