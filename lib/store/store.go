package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/fileio"
	"github.com/ValentinKolb/dDoc/lib/history"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/serializer"
	"github.com/ValentinKolb/dDoc/lib/txn"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

var (
	metricReads         = metrics.GetOrCreateCounter("ddoc_store_reads_total")
	metricWrites        = metrics.GetOrCreateCounter("ddoc_store_writes_total")
	metricWriteFailures = metrics.GetOrCreateCounter("ddoc_store_write_failures_total")
	metricDeletes       = metrics.GetOrCreateCounter("ddoc_store_deletes_total")
	metricReadDuration  = metrics.GetOrCreateHistogram("ddoc_store_read_duration_seconds")
	metricWriteDuration = metrics.GetOrCreateHistogram("ddoc_store_write_duration_seconds")
)

// Options holds the optional collaborators of a store.
// Every nil field is replaced by the default implementation.
type Options struct {
	FileIO     fileio.FileIO          // Disk access (default: fileio.NewFileIO())
	Serializer serializer.ISerializer // Document encoding (default: indented JSON)
	Registry   *lockmgr.Registry      // Lock ownership shared by all stores on the same base dir (default: private registry)

	// CacheTTL overrides the cache ttl of the configuration if > 0
	CacheTTL time.Duration
	// CacheSweepInterval sets the interval of the background cache sweep if > 0 (default: ttl)
	CacheSweepInterval time.Duration
}

// Store is the facade over the file-backed document store.
// Documents are addressed by slash separated paths relative to the base directory.
//
// Thread-safety: All methods are safe for concurrent use. Writes do not lock implicitly:
// callers that need read-modify-write atomicity must use Lock or ExecuteInTransaction.
type Store struct {
	conf    common.StoreConfig
	baseDir string // absolute

	fio      fileio.FileIO
	ser      serializer.ISerializer
	cache    cache.ICache[[]byte] // path -> encoded document
	registry *lockmgr.Registry
	locks    lockmgr.ILockManager
	versions *history.Versioner
	coord    *txn.Coordinator
}

// NewStore creates a store rooted at conf.BaseDir. The base directory is created if missing.
// The returned store must be closed to stop the background cache sweep.
func NewStore(conf common.StoreConfig, opts *Options) (*Store, error) {
	if err := conf.Validate(); err != nil {
		return nil, NewError(RetCInternalError, "", fmt.Sprintf("invalid configuration: %v", err))
	}
	if opts == nil {
		opts = &Options{}
	}

	baseDir, err := filepath.Abs(conf.BaseDir)
	if err != nil {
		return nil, &Error{Code: RetCInvalidPath, Path: conf.BaseDir, Msg: "can not resolve base directory", Err: err}
	}

	fio := opts.FileIO
	if fio == nil {
		fio = fileio.NewFileIO()
	}
	ser := opts.Serializer
	if ser == nil {
		ser = serializer.NewJSONSerializer()
	}
	registry := opts.Registry
	if registry == nil {
		registry = lockmgr.NewRegistry()
	}
	ttl := conf.CacheTTL()
	if opts.CacheTTL > 0 {
		ttl = opts.CacheTTL
	}

	if err := fio.MkdirAll(context.Background(), baseDir, dirPerm); err != nil {
		return nil, &Error{Code: RetCIOFailure, Path: baseDir, Msg: "can not create base directory", Err: err}
	}

	locks := lockmgr.NewLockManager(baseDir, registry)

	s := &Store{
		conf:     conf,
		baseDir:  baseDir,
		fio:      fio,
		ser:      ser,
		registry: registry,
		locks:    locks,
		cache: cache.NewCache[[]byte](&cache.Options{
			MaxSize:       conf.CacheMaxSize,
			TTL:           ttl,
			SweepInterval: opts.CacheSweepInterval,
		}),
		versions: history.NewVersioner(fio, ser, history.Options{
			Enabled:     conf.VersioningEnabled,
			MaxVersions: conf.MaxVersions,
		}),
		coord: txn.NewCoordinator(locks, conf.LockTimeout()),
	}

	Logger.Infof("store opened at %s (cache %d entries / %s, versioning %t)",
		baseDir, conf.CacheMaxSize, ttl, conf.VersioningEnabled)
	return s, nil
}

// BaseDir returns the absolute base directory of the store
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Config returns the configuration the store was created with
func (s *Store) Config() common.StoreConfig {
	return s.conf
}

// Close stops the background work of the store. It is safe to call Close more than once.
func (s *Store) Close() error {
	return s.cache.Close()
}

// --------------------------------------------------------------------------
// File operations
// --------------------------------------------------------------------------

// Delete invalidates all cached entries at or below path and removes the file, or
// the whole directory tree if path is a directory. Deleting a missing path succeeds.
//
// Snapshots of a deleted document are kept. Deleting a directory removes everything
// in the tree including the snapshots and lock files stored there, so it is refused
// while a lock on a document below path is held in this process.
func (s *Store) Delete(ctx context.Context, path string) bool {
	abs, key, err := s.resolve(path)
	if err != nil {
		Logger.Warningf("delete: %v", err)
		return false
	}
	if key == "." {
		Logger.Warningf("delete: refusing to delete the base directory")
		return false
	}

	info, err := s.fio.Stat(ctx, abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.invalidate(key)
			return true
		}
		Logger.Errorf("delete %s: %v", key, err)
		return false
	}

	if info.IsDir() {
		if held := s.registry.HeldUnder(key + "/"); len(held) > 0 {
			Logger.Warningf("delete %s: refusing to delete directory, %d lock(s) held below it (%s)", key, len(held), held[0])
			return false
		}
	}

	// invalidate first, so no reader sees the cached document once removal started
	s.invalidate(key)

	if info.IsDir() {
		err = s.fio.RemoveAll(ctx, abs)
	} else {
		err = s.fio.Remove(ctx, abs)
	}
	// and again, a read that loaded the file before removal must not cache it afterward
	s.invalidate(key)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		Logger.Errorf("delete %s: %v", key, err)
		return false
	}

	metricDeletes.Inc()
	Logger.Debugf("deleted %s", key)
	return true
}

// invalidate drops the cache entries at and below key
func (s *Store) invalidate(key string) {
	s.cache.Remove(key)
	s.cache.Invalidate(key + "/")
}

// Exists reports whether a file or directory exists at path
func (s *Store) Exists(ctx context.Context, path string) bool {
	abs, _, err := s.resolve(path)
	if err != nil {
		return false
	}
	return s.fio.Exists(ctx, abs)
}

// CreateDirectory creates the directory path including all parents.
// It returns true if the directory exists afterward.
func (s *Store) CreateDirectory(ctx context.Context, path string) bool {
	abs, key, err := s.resolve(path)
	if err != nil {
		Logger.Warningf("create directory: %v", err)
		return false
	}
	if err := s.fio.MkdirAll(ctx, abs, dirPerm); err != nil {
		Logger.Errorf("create directory %s: %v", key, err)
		return false
	}
	info, err := s.fio.Stat(ctx, abs)
	return err == nil && info.IsDir()
}

// ListFiles returns the sorted names of the regular files in dir for which filter returns true.
// A nil filter accepts every file. Lock files and temporary files are never listed.
// A missing directory yields an empty list.
func (s *Store) ListFiles(ctx context.Context, dir string, filter func(name string) bool) []string {
	names := []string{}

	abs, key, err := s.resolve(dir)
	if err != nil {
		Logger.Warningf("list files: %v", err)
		return names
	}

	entries, err := s.fio.ReadDir(ctx, abs)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			Logger.Errorf("list files %s: %v", key, err)
		}
		return names
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() ||
			strings.HasSuffix(name, lockmgr.LockFileSuffix) ||
			fileio.IsTempFile(name) {
			continue
		}
		if filter == nil || filter(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

// Lock acquires the lock of path for owner, waiting at most the configured lock timeout.
// The caller must release the returned handle, preferably with defer.
func (s *Store) Lock(ctx context.Context, owner, path string) (*lockmgr.LockHandle, error) {
	_, key, err := s.resolveDocument(path)
	if err != nil {
		return nil, err
	}
	return s.locks.Acquire(ctx, key, owner, s.conf.LockTimeout())
}

// ExecuteInTransaction runs fn while owner holds the locks of all paths.
// See txn.Execute for the ordering and release guarantees.
func ExecuteInTransaction[R any](ctx context.Context, s *Store, owner string, paths []string, fn func(ctx context.Context, tx *txn.Transaction) (R, error)) (R, error) {
	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		_, key, err := s.resolveDocument(path)
		if err != nil {
			var zero R
			return zero, err
		}
		keys = append(keys, key)
	}
	return txn.Execute(ctx, s.coord, owner, keys, fn)
}

// --------------------------------------------------------------------------
// History
// --------------------------------------------------------------------------

// History returns the snapshots of the document at path, oldest first.
func (s *Store) History(ctx context.Context, path string) ([]history.Snapshot, error) {
	abs, key, err := s.resolveDocument(path)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.versions.List(ctx, abs)
	if err != nil {
		return nil, &Error{Code: RetCIOFailure, Path: key, Msg: "can not list history", Err: err}
	}
	return snapshots, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// resolve cleans path and returns its absolute location and its cache/lock key.
// The key of the base directory itself is ".".
func (s *Store) resolve(path string) (abs, key string, err error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	if !filepath.IsLocal(cleaned) {
		return "", "", NewError(RetCInvalidPath, path, "path must be relative and stay inside the base directory")
	}
	return filepath.Join(s.baseDir, cleaned), filepath.ToSlash(cleaned), nil
}

// resolveDocument is like resolve but additionally rejects paths that can not name a document.
func (s *Store) resolveDocument(path string) (abs, key string, err error) {
	abs, key, err = s.resolve(path)
	if err != nil {
		return "", "", err
	}
	if key == "." {
		return "", "", NewError(RetCInvalidPath, path, "path names the base directory")
	}
	if strings.HasSuffix(key, lockmgr.LockFileSuffix) {
		return "", "", NewError(RetCInvalidPath, path, "paths ending in "+lockmgr.LockFileSuffix+" are reserved for lock files")
	}
	return abs, key, nil
}
