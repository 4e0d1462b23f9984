package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dDoc/lib/fileio"
	"github.com/ValentinKolb/dDoc/lib/serializer"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("history")

const (
	// DirName is the name of the directory next to a document that holds its snapshots
	DirName = "_history"

	// Unversioned is used as version of a snapshot whose source document had no readable version
	Unversioned = "unversioned"

	filePerm = 0o644
	dirPerm  = 0o755
)

// Snapshot describes one stored copy of a previous document state.
type Snapshot struct {
	Document  string    // base name of the document, without extension
	Version   string    // version of the document state the snapshot holds
	Timestamp time.Time // time the snapshot was taken (from the file name)
	Location  string    // absolute path of the snapshot file
	ModTime   time.Time // modification time of the snapshot file
}

// Options configures a Versioner
type Options struct {
	Enabled     bool // if false all operations are no-ops
	MaxVersions int  // number of snapshots retained per document
}

// Versioner copies documents into their history directory before they are overwritten
// and keeps the number of snapshots per document bounded.
//
// Thread-safety: A Versioner holds no mutable state. Concurrent snapshots of the same
// document are only ordered if the caller serializes the writes (e.g. with a lock).
type Versioner struct {
	fio  fileio.FileIO
	ser  serializer.ISerializer
	opts Options
}

// NewVersioner creates a Versioner that uses fio for all disk access and ser to read document versions
func NewVersioner(fio fileio.FileIO, ser serializer.ISerializer, opts Options) *Versioner {
	return &Versioner{fio: fio, ser: ser, opts: opts}
}

// Enabled reports whether versioning is turned on
func (v *Versioner) Enabled() bool {
	return v.opts.Enabled
}

// MaxVersions returns the number of snapshots retained per document
func (v *Versioner) MaxVersions() int {
	return v.opts.MaxVersions
}

// --------------------------------------------------------------------------
// Snapshot / Prune / List
// --------------------------------------------------------------------------

// SnapshotBeforeWrite copies the current content of absPath to
// <dir>/_history/<name>_<version>_<unixNano>.json, where version is the version of
// the content being replaced.
//
// Returns (nil, nil) if versioning is disabled or absPath does not exist yet.
func (v *Versioner) SnapshotBeforeWrite(ctx context.Context, absPath string) (*Snapshot, error) {
	if !v.opts.Enabled {
		return nil, nil
	}

	data, err := v.fio.ReadFile(ctx, absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read document for snapshot: %w", err)
	}

	version := v.versionOf(data)
	now := time.Now()

	histDir := historyDir(absPath)
	if err := v.fio.MkdirAll(ctx, histDir, dirPerm); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	name := documentName(absPath, v.ser.Extension())
	location := filepath.Join(histDir, snapshotFileName(name, version, now, v.ser.Extension()))
	if err := v.fio.WriteFile(ctx, location, data, filePerm); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	Logger.Debugf("snapshot of %s (version %s) written to %s", absPath, version, location)

	return &Snapshot{
		Document:  name,
		Version:   version,
		Timestamp: time.Unix(0, now.UnixNano()),
		Location:  location,
		ModTime:   now,
	}, nil
}

// Prune deletes the oldest snapshots of absPath until at most MaxVersions remain.
// Snapshots that can not be deleted are logged and skipped.
func (v *Versioner) Prune(ctx context.Context, absPath string) (int, error) {
	if !v.opts.Enabled || v.opts.MaxVersions <= 0 {
		return 0, nil
	}

	snapshots, err := v.List(ctx, absPath)
	if err != nil {
		return 0, err
	}

	excess := len(snapshots) - v.opts.MaxVersions
	removed := 0
	for i := 0; i < excess; i++ {
		if err := v.fio.Remove(ctx, snapshots[i].Location); err != nil && !errors.Is(err, os.ErrNotExist) {
			Logger.Warningf("failed to prune snapshot %s: %v", snapshots[i].Location, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		Logger.Debugf("pruned %d snapshots of %s", removed, absPath)
	}
	return removed, nil
}

// List returns the snapshots of absPath, oldest first.
// Files in the history directory that belong to other documents are ignored.
// A missing history directory yields an empty list.
func (v *Versioner) List(ctx context.Context, absPath string) ([]Snapshot, error) {
	histDir := historyDir(absPath)
	entries, err := v.fio.ReadDir(ctx, histDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list history directory: %w", err)
	}

	name := documentName(absPath, v.ser.Extension())
	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || fileio.IsTempFile(entry.Name()) {
			continue
		}
		version, ts, ok := parseSnapshotFileName(name, entry.Name(), v.ser.Extension())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed concurrently
			continue
		}

		snapshots = append(snapshots, Snapshot{
			Document:  name,
			Version:   version,
			Timestamp: ts,
			Location:  filepath.Join(histDir, entry.Name()),
			ModTime:   info.ModTime(),
		})
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if !snapshots[i].ModTime.Equal(snapshots[j].ModTime) {
			return snapshots[i].ModTime.Before(snapshots[j].ModTime)
		}
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	return snapshots, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// versionOf returns the version of an encoded document, or Unversioned
func (v *Versioner) versionOf(data []byte) string {
	var header envelopeHeader
	if err := v.ser.Deserialize(data, &header); err != nil || header.Payload == nil {
		return Unversioned
	}
	if _, err := uuid.Parse(header.Version); err != nil {
		return Unversioned
	}
	return header.Version
}

// historyDir returns the history directory for the document at absPath
func historyDir(absPath string) string {
	return filepath.Join(filepath.Dir(absPath), DirName)
}

// documentName returns the base name of absPath without ext
func documentName(absPath, ext string) string {
	return strings.TrimSuffix(filepath.Base(absPath), ext)
}

func snapshotFileName(name, version string, ts time.Time, ext string) string {
	return name + "_" + version + "_" + strconv.FormatInt(ts.UnixNano(), 10) + ext
}

// parseSnapshotFileName splits a snapshot file name of the document name into version and timestamp.
// The name is parsed from the right, and the version must be a uuid or Unversioned, so the
// snapshots of "a" are not confused with those of "a_b".
func parseSnapshotFileName(name, fileName, ext string) (string, time.Time, bool) {
	if !strings.HasSuffix(fileName, ext) || !strings.HasPrefix(fileName, name+"_") {
		return "", time.Time{}, false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(fileName, name+"_"), ext)

	sep := strings.LastIndex(rest, "_")
	if sep <= 0 {
		return "", time.Time{}, false
	}
	version, tsPart := rest[:sep], rest[sep+1:]

	nanos, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	if version != Unversioned {
		if _, err := uuid.Parse(version); err != nil || len(version) != 36 {
			return "", time.Time{}, false
		}
	}
	return version, time.Unix(0, nanos), true
}
