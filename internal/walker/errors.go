package walker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrQueueClosed is returned by Dequeue and Enqueue once the queue was closed.
// Workers treat it as the signal to leave their loop, not as a failure.
var ErrQueueClosed = errors.New("task queue closed")

// DirectoryOp identifies the step at which a directory failed.
type DirectoryOp int

const (
	// OpAcquire represents failure to obtain a session for the directory.
	OpAcquire DirectoryOp = iota
	// OpOpen represents failure to open the directory.
	OpOpen
	// OpRead represents failure while iterating the directory.
	OpRead
)

// String returns the string representation of DirectoryOp.
func (o DirectoryOp) String() string {
	switch o {
	case OpAcquire:
		return "acquire"
	case OpOpen:
		return "open"
	case OpRead:
		return "read"
	default:
		return "unknown"
	}
}

// DirectoryError represents a failure contained to one subtree.
type DirectoryError struct {
	Path      string      // Directory that failed
	Op        DirectoryOp // Step that failed
	Entries   int         // Entries read before a read failure
	Err       error       // Underlying error
	Timestamp time.Time   // When the error occurred
}

// NewDirectoryError creates a new DirectoryError with the current timestamp.
func NewDirectoryError(path string, op DirectoryOp, err error) *DirectoryError {
	return &DirectoryError{
		Path:      path,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for DirectoryError.
func (e *DirectoryError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s", e.Op, e.Path))
	if e.Op == OpRead && e.Entries > 0 {
		sb.WriteString(fmt.Sprintf(" (after %d entries)", e.Entries))
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// IsCancellation reports whether err is the result of context cancellation or timeout.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
