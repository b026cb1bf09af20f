// Package filelock guards the --output file so two gpfind runs never write
// the same listing at once.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("file is locked by another process")

// FileLock wraps a flock file lock for coordinating access to files.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a new file lock for the given path.
// The lock file will be created at the specified path.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// TryLock attempts to acquire an exclusive lock on the file without blocking.
// Returns true if the lock was acquired, false if the lock is held by another process.
func (fl *FileLock) TryLock() (bool, error) {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock on %s: %w", fl.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// OutputFile is a truncated output file held under an exclusive lock.
// The lock lives in "<path>.lock" next to the file.
type OutputFile struct {
	*os.File
	lock *FileLock
}

// OpenOutput locks path+".lock" without blocking and then creates or
// truncates path. It fails with ErrLocked when another run owns the file.
func OpenOutput(path string) (*OutputFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	lock := NewFileLock(path + ".lock")
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to open output %s: %w", path, err)
	}

	return &OutputFile{File: f, lock: lock}, nil
}

// Close syncs and closes the file, then releases the lock.
func (o *OutputFile) Close() error {
	syncErr := o.File.Sync()
	closeErr := o.File.Close()
	unlockErr := o.lock.Unlock()
	return errors.Join(syncErr, closeErr, unlockErr)
}
