// Package fileio is the raw file I/O primitive underneath the document store
// and the history subsystem. All operations are context aware and retry
// transient OS errors with a short exponential backoff. Permanent errors
// (missing files, permissions, full disks, ...) are returned immediately.
//
// The FileIO interface exists so callers can instrument or replace the
// backing storage, e.g. to count disk reads in tests.
package fileio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	retry "github.com/sethvargo/go-retry"
)

var Logger = logger.GetLogger("fileio")

const (
	// TempFileMarker is part of the name of every temporary file created by WriteFile.
	// Directory listings of the store hide files containing it.
	TempFileMarker = ".tmp-"

	retryBase       = 10 * time.Millisecond
	retryMaxRetries = 3
)

// FileIO defines the filesystem operations used by the store.
type FileIO interface {
	// ReadFile returns the content of the named file.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// WriteFile atomically replaces the named file: data is written to a temporary
	// file in the same directory which is then renamed over the target.
	WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error
	// Remove removes the named file or empty directory.
	Remove(ctx context.Context, name string) error
	// Stat returns the file info of the named file.
	Stat(ctx context.Context, name string) (os.FileInfo, error)
	// Exists reports whether the path exists.
	Exists(ctx context.Context, path string) bool

	// Directory API.
	RemoveAll(ctx context.Context, path string) error
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
	ReadDir(ctx context.Context, dir string) ([]os.DirEntry, error)
}

type defaultFileIO struct{}

// NewFileIO returns a FileIO that performs I/O via the os package with
// retry handling for transient errors.
func NewFileIO() FileIO {
	return &defaultFileIO{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see FileIO)
// --------------------------------------------------------------------------

func (dio *defaultFileIO) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := doWithRetry(ctx, func() error {
		var err error
		data, err = os.ReadFile(name)
		return err
	})
	return data, err
}

func (dio *defaultFileIO) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	return doWithRetry(ctx, func() error {
		return writeAtomic(name, data, perm)
	})
}

func (dio *defaultFileIO) Remove(ctx context.Context, name string) error {
	return doWithRetry(ctx, func() error {
		return os.Remove(name)
	})
}

func (dio *defaultFileIO) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	var info os.FileInfo
	err := doWithRetry(ctx, func() error {
		var err error
		info, err = os.Stat(name)
		return err
	})
	return info, err
}

func (dio *defaultFileIO) Exists(_ context.Context, path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (dio *defaultFileIO) RemoveAll(ctx context.Context, path string) error {
	return doWithRetry(ctx, func() error {
		return os.RemoveAll(path)
	})
}

func (dio *defaultFileIO) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return doWithRetry(ctx, func() error {
		return os.MkdirAll(path, perm)
	})
}

func (dio *defaultFileIO) ReadDir(ctx context.Context, dir string) ([]os.DirEntry, error) {
	var entries []os.DirEntry
	err := doWithRetry(ctx, func() error {
		var err error
		entries, err = os.ReadDir(dir)
		return err
	})
	return entries, err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// writeAtomic writes data to a temporary sibling of name and renames it into place.
func writeAtomic(name string, data []byte, perm os.FileMode) (err error) {
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+TempFileMarker+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// remove the temporary file on every error path
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, name)
}

// doWithRetry runs fn and retries it with exponential backoff as long as it fails with a transient error.
func doWithRetry(ctx context.Context, fn func() error) error {
	b := retry.WithMaxRetries(retryMaxRetries, retry.NewExponential(retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn()
		if ShouldRetry(err) {
			Logger.Debugf("transient file error, retrying: %v", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// ShouldRetry reports whether the error is transient (non-nil and not a known permanent failure).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}

	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ENOTEMPTY),
		errors.Is(err, syscall.ELOOP),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.EINVAL):
		return false
	}

	return !strings.Contains(err.Error(), "read-only file system")
}

// IsTempFile reports whether name is a temporary file left by WriteFile.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, TempFileMarker)
}
