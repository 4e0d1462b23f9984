package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dDoc/lib/history"
)

// Transform modifies a document payload after it was loaded from disk.
type Transform[T any] func(payload T) T

// Read returns the payload of the document at path.
// The second return value is false if the document does not exist or can not be decoded as T.
func Read[T any](ctx context.Context, s *Store, path string) (T, bool) {
	doc, ok := ReadDocument[T](ctx, s, path)
	if !ok {
		var zero T
		return zero, false
	}
	return doc.Payload, true
}

// ReadDocument returns the document at path including its version and modification time.
//
// The cache is consulted first. On a miss the document is loaded from disk, the transforms
// are applied in order and the result is cached unless the document was written or deleted
// while it was loaded: the transformed document is what later
// reads observe until the cache entry expires or is replaced. Every call returns an
// independent copy, callers may modify it freely.
//
// Files that are valid encodings of T but carry no envelope are returned with version history.Unversioned.
func ReadDocument[T any](ctx context.Context, s *Store, path string, transforms ...Transform[T]) (*history.Document[T], bool) {
	start := time.Now()
	defer metricReadDuration.UpdateDuration(start)
	metricReads.Inc()

	abs, key, err := s.resolveDocument(path)
	if err != nil {
		Logger.Warningf("read: %v", err)
		return nil, false
	}

	if data, ok := s.cache.Get(key); ok {
		doc, err := decodeDocument[T](s, data)
		if err == nil {
			return doc, true
		}
		// cached for another type, fall through to the disk
		Logger.Debugf("read %s: cached document does not decode: %v", key, err)
	}

	// a write or delete finishing while the file is loaded advances the generation,
	// the loaded document is then returned but not cached
	gen := s.cache.Generation(key)
	data, err := s.fio.ReadFile(ctx, abs)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			Logger.Errorf("read %s: %v", key, err)
		}
		return nil, false
	}

	doc, err := decodeDocument[T](s, data)
	if err != nil {
		Logger.Warningf("read %s: can not decode document: %v", key, err)
		return nil, false
	}

	if len(transforms) > 0 {
		for _, transform := range transforms {
			doc.Payload = transform(doc.Payload)
		}
		if data, err = s.ser.Serialize(doc); err != nil {
			Logger.Warningf("read %s: can not encode transformed document: %v", key, err)
			return doc, true
		}
	}

	if !s.cache.PutIfGeneration(key, gen, data) {
		Logger.Debugf("read %s: changed while loading, not cached", key)
	}
	return doc, true
}

// Write stores value as the new payload of the document at path.
//
// Parent directories are created as needed. If versioning is enabled the previous
// document is snapshotted first and the history is pruned, failures there are logged
// and do not fail the write. The document gets a fresh version, is written atomically
// and replaces the cache entry. Write returns false if the document could not be stored.
func Write[T any](ctx context.Context, s *Store, path string, value T) bool {
	start := time.Now()
	defer metricWriteDuration.UpdateDuration(start)

	abs, key, err := s.resolveDocument(path)
	if err != nil {
		Logger.Warningf("write: %v", err)
		metricWriteFailures.Inc()
		return false
	}

	if err := s.fio.MkdirAll(ctx, filepath.Dir(abs), dirPerm); err != nil {
		Logger.Errorf("write %s: can not create parent directory: %v", key, err)
		metricWriteFailures.Inc()
		return false
	}

	if s.versions.Enabled() {
		if _, err := s.versions.SnapshotBeforeWrite(ctx, abs); err != nil {
			Logger.Warningf("write %s: snapshot skipped: %v", key, err)
		} else if _, err := s.versions.Prune(ctx, abs); err != nil {
			Logger.Warningf("write %s: prune skipped: %v", key, err)
		}
	}

	doc := history.Stamp(value, time.Now())
	data, err := s.ser.Serialize(doc)
	if err != nil {
		Logger.Errorf("write %s: can not encode document: %v", key, err)
		metricWriteFailures.Inc()
		return false
	}

	if err := s.fio.WriteFile(ctx, abs, data, filePerm); err != nil {
		Logger.Errorf("write %s: %v", key, err)
		// the file may or may not have been replaced
		s.cache.Remove(key)
		metricWriteFailures.Inc()
		return false
	}

	s.cache.Put(key, data)
	metricWrites.Inc()
	return true
}

// ReadSnapshot loads the document state stored in a snapshot returned by History.
func ReadSnapshot[T any](ctx context.Context, s *Store, snapshot history.Snapshot) (*history.Document[T], error) {
	location := filepath.Clean(snapshot.Location)
	rel, err := filepath.Rel(s.baseDir, location)
	if err != nil || !filepath.IsLocal(rel) || filepath.Base(filepath.Dir(location)) != history.DirName {
		return nil, NewError(RetCInvalidPath, snapshot.Location, "not a snapshot of this store")
	}

	data, err := s.fio.ReadFile(ctx, location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Code: RetCNotFound, Path: filepath.ToSlash(rel), Msg: "snapshot does not exist", Err: err}
		}
		return nil, &Error{Code: RetCIOFailure, Path: filepath.ToSlash(rel), Err: err}
	}

	doc, err := decodeDocument[T](s, data)
	if err != nil {
		return nil, &Error{Code: RetCInternalError, Path: filepath.ToSlash(rel), Msg: "can not decode snapshot", Err: err}
	}
	return doc, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decodeDocument decodes an envelope. Data without an envelope is decoded as a bare payload.
func decodeDocument[T any](s *Store, data []byte) (*history.Document[T], error) {
	if history.IsEnvelope(s.ser, data) {
		var doc history.Document[T]
		if err := s.ser.Deserialize(data, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}

	var payload T
	if err := s.ser.Deserialize(data, &payload); err != nil {
		return nil, err
	}
	return &history.Document[T]{Version: history.Unversioned, Payload: payload}, nil
}
