package walker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/harrison/gpfind/internal/models"
	"github.com/harrison/gpfind/internal/volume"
)

// ConnectionPool hands out sessions to the volume. A session returned by
// Acquire is used by one worker only until it is passed to Release, or to
// Discard when it may be broken.
type ConnectionPool interface {
	Acquire(ctx context.Context) (volume.Conn, error)
	Release(conn volume.Conn)
	Discard(conn volume.Conn)
}

// runStats is shared by all workers of one run.
type runStats struct {
	directories atomic.Int64
	files       atomic.Int64

	mu       sync.Mutex
	failures []models.SubtreeFailure
}

func (s *runStats) addFailure(path string, err error) {
	s.mu.Lock()
	s.failures = append(s.failures, models.SubtreeFailure{Path: path, Err: err})
	s.mu.Unlock()
}

func (s *runStats) snapshotFailures() []models.SubtreeFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SubtreeFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// worker expands directories taken from the queue.
type worker struct {
	id     int
	queue  *TaskQueue
	pool   ConnectionPool
	files  chan<- models.FilePath
	logger Logger
	stats  *runStats
}

// run loops until the queue is closed or ctx is cancelled.
// It returns nil on a normal shutdown and the context error on cancellation.
func (w *worker) run(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if errors.Is(err, ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		err = w.expand(ctx, task)
		w.queue.MarkDone()
		w.stats.directories.Add(1)

		if err != nil {
			if IsCancellation(err) {
				return err
			}
			var dirErr *DirectoryError
			if errors.As(err, &dirErr) {
				w.stats.addFailure(task.Path, dirErr)
				if w.logger != nil {
					w.logger.LogSubtreeError(task.Path, dirErr)
				}
				continue
			}
			return err
		}
	}
}

// expand reads one directory. Subdirectories are enqueued and regular files
// are sent to the sink before expand returns, so the caller may mark the
// task done right after.
//
// A session that failed to open or read is discarded rather than released,
// so a dropped connection costs only the current task.
func (w *worker) expand(ctx context.Context, task models.DirectoryTask) (err error) {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		if IsCancellation(err) {
			return err
		}
		return NewDirectoryError(task.Path, OpAcquire, err)
	}
	defer func() {
		var dirErr *DirectoryError
		if errors.As(err, &dirErr) {
			w.pool.Discard(conn)
			return
		}
		w.pool.Release(conn)
	}()

	dir, err := conn.OpenDir(ctx, task.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewDirectoryError(task.Path, OpOpen, err)
	}
	defer dir.Close()

	if w.logger != nil {
		w.logger.LogTrace(fmt.Sprintf("worker %d: expanding %s", w.id, task.Path))
	}

	read := 0
	for {
		entry, err := dir.Next(ctx)
		if errors.Is(err, volume.EOD) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dirErr := NewDirectoryError(task.Path, OpRead, err)
			dirErr.Entries = read
			return dirErr
		}
		read++

		if entry.Parent == "" {
			entry.Parent = task.Path
		}
		if err := w.classify(ctx, entry); err != nil {
			return err
		}
	}
}

// classify routes one entry: directories go back to the queue, files go to
// the sink, everything else is dropped.
func (w *worker) classify(ctx context.Context, entry models.Entry) error {
	switch entry.Type {
	case models.EntryDirectory:
		if entry.IsSelfOrParent() {
			return nil
		}
		if err := w.queue.Enqueue(models.DirectoryTask{Path: entry.Path()}); err != nil {
			// The queue only closes while this task is in flight when the run is cancelled.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("enqueue %s: %w", entry.Path(), err)
		}
		return nil

	case models.EntryFile:
		select {
		case w.files <- models.FilePath(entry.Path()):
			w.stats.files.Add(1)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	default:
		return nil
	}
}
