// Package walker implements the concurrent traversal engine.
//
// A run wires four pieces together:
//
//	root ──► TaskQueue ──► N discovery workers ──► file channel ──► M printers
//	            ▲                 │
//	            └── subdirectories┘
//
// The termination detector watches the queue's in-flight counter. When it
// reaches zero the queue is closed, every worker returns, the file channel
// is closed and the printers drain what is left.
package walker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harrison/gpfind/internal/models"
)

// Default tuning values used when Options leaves a field at zero.
const (
	DefaultWorkers    = 8
	DefaultPrinters   = 1
	DefaultFileBuffer = 1024
)

// Logger receives progress and per-subtree diagnostics from a run.
// Implementations must be safe for concurrent use.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogSubtreeError(path string, err error)
	LogSummary(summary models.RunSummary)
}

// Options configures a Walker.
type Options struct {
	Root       string // Directory to start from
	Workers    int    // Discovery workers
	Printers   int    // Print sink consumers
	FileBuffer int    // Capacity of the channel between workers and printers (>= 1)
	RunID      string // Optional identifier, generated when empty
}

// Walker traverses one volume.
type Walker struct {
	pool   ConnectionPool
	out    io.Writer
	logger Logger
	opts   Options
}

// New constructs a Walker. The logger parameter is optional and can be nil.
func New(pool ConnectionPool, out io.Writer, logger Logger, opts Options) *Walker {
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Printers <= 0 {
		opts.Printers = DefaultPrinters
	}
	if opts.FileBuffer < 1 {
		opts.FileBuffer = DefaultFileBuffer
	}
	return &Walker{
		pool:   pool,
		out:    out,
		logger: logger,
		opts:   opts,
	}
}

// Options returns the effective options after defaults were applied.
func (w *Walker) Options() Options {
	return w.opts
}

// Run traverses the tree below the root and prints every regular file.
//
// Failed subtrees are logged and counted in the summary but do not fail the
// run. Run returns an error only when ctx is cancelled, the output cannot be
// written, or the engine hits an internal error. The summary is returned in
// every case and describes what was done before the run ended.
func (w *Walker) Run(ctx context.Context) (*models.RunSummary, error) {
	if w == nil {
		return nil, fmt.Errorf("walker is nil")
	}
	if w.pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if w.out == nil {
		return nil, fmt.Errorf("output writer is required")
	}

	runID := w.opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	start := time.Now()

	queue := NewTaskQueue()
	files := make(chan models.FilePath, w.opts.FileBuffer)
	sink := NewPrintSink(w.out)
	stats := &runStats{}

	if w.logger != nil {
		w.logger.LogInfo(fmt.Sprintf("Walking %s with %d worker(s) (run %s)", w.opts.Root, w.opts.Workers, runID))
	}

	if err := queue.Enqueue(models.DirectoryTask{Path: w.opts.Root}); err != nil {
		return nil, fmt.Errorf("seed queue: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		watchQuiescence(gctx, queue)
		return nil
	})

	g.Go(func() error {
		// The file channel has exactly one closer: the discovery group, once
		// every worker has returned.
		defer close(files)
		dg, dctx := errgroup.WithContext(gctx)
		for i := 0; i < w.opts.Workers; i++ {
			wk := &worker{
				id:     i,
				queue:  queue,
				pool:   w.pool,
				files:  files,
				logger: w.logger,
				stats:  stats,
			}
			dg.Go(func() error {
				return wk.run(dctx)
			})
		}
		return dg.Wait()
	})

	for i := 0; i < w.opts.Printers; i++ {
		g.Go(func() error {
			return sink.Drain(gctx, files)
		})
	}

	runErr := g.Wait()
	if err := sink.Flush(); err != nil && runErr == nil {
		runErr = err
	}

	failures := stats.snapshotFailures()
	summary := &models.RunSummary{
		RunID:       runID,
		Root:        w.opts.Root,
		Directories: stats.directories.Load(),
		Files:       sink.Printed(),
		Failed:      len(failures),
		Failures:    failures,
		Duration:    time.Since(start),
		Cancelled:   runErr != nil && IsCancellation(runErr),
	}

	if w.logger != nil {
		w.logger.LogDebug(fmt.Sprintf("Discovered %d file(s), printed %d", stats.files.Load(), summary.Files))
		w.logger.LogSummary(*summary)
	}

	if runErr != nil {
		if summary.Cancelled {
			return summary, fmt.Errorf("traversal cancelled: %w", runErr)
		}
		return summary, runErr
	}
	return summary, nil
}
