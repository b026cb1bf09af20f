// Package volume defines the remote directory client used by the walker and
// a bounded pool of client sessions.
//
// A Conn is an authenticated session to one volume. It is not assumed to be
// reentrant: the Pool hands every Conn to at most one caller at a time.
package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harrison/gpfind/internal/models"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("volume: pool closed")

// EOD is returned by DirReader.Next once every entry has been read.
var EOD = io.EOF

// Conn is a session to a volume.
type Conn interface {
	// OpenDir opens a directory for lazy iteration.
	OpenDir(ctx context.Context, path string) (DirReader, error)
	// Ping verifies that the session can still reach the volume.
	Ping(ctx context.Context) error
	// Close tears the session down.
	Close() error
}

// DirReader iterates the entries of one open directory.
type DirReader interface {
	// Next returns the next entry, or EOD when the directory is exhausted.
	Next(ctx context.Context) (models.Entry, error)
	Close() error
}

// Dialer establishes a new session.
type Dialer func(ctx context.Context) (Conn, error)

// ConnectionError reports a failure to establish or acquire a session.
type ConnectionError struct {
	Target    string    // Human readable description of the volume
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

// NewConnectionError creates a ConnectionError with the current timestamp.
func NewConnectionError(target string, err error) *ConnectionError {
	return &ConnectionError{
		Target:    target,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for ConnectionError.
func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s", e.Target)
	}
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
