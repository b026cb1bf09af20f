package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/gpfind/internal/config"
	"github.com/harrison/gpfind/internal/filelock"
	"github.com/harrison/gpfind/internal/logger"
	"github.com/harrison/gpfind/internal/walker"
)

// NewFindCommand creates and returns the find subcommand
func NewFindCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Print every regular file below a directory of a volume",
		Long: `Traverse a volume from --path and print the full path of every regular
file, one per line. Output order is not defined.

Directories are expanded by --workers concurrent workers, each borrowing a
session from a pool of at most --pool-size sessions. Paths go to stdout, or
to --output (locked against concurrent runs). Diagnostics and the run summary
go to stderr.

Examples:
  gpfind find --server /srv/bricks --volume vol0
  gpfind find -s gluster1 -v vol0 -p /projects --workers 32
  gpfind find --backend minio -s minio.internal --port 9000 --volume archive

Exit code: 0 when the traversal completes, even if some directories were
skipped; 1 if the volume cannot be reached or the run is interrupted.`,
		Args: cobra.NoArgs,
		RunE: runFind,
	}

	addVolumeFlags(cmd)
	cmd.Flags().Int("workers", walker.DefaultWorkers, "Number of concurrent discovery workers")
	cmd.Flags().Int("printers", walker.DefaultPrinters, "Number of output writers")
	cmd.Flags().Int("file-buffer", walker.DefaultFileBuffer, "Paths buffered between workers and writers (>= 1)")
	cmd.Flags().Int("pool-size", 0, "Maximum volume sessions (0 = one per worker)")
	cmd.Flags().String("log-dir", "", "Directory for the rotating log file")
	cmd.Flags().StringP("output", "o", "", "Write paths to this file instead of stdout")

	return cmd
}

func runFind(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return find(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// find runs one traversal. Paths are written to stdout unless cfg.Output is set.
func find(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	consoleLog := logger.NewConsoleLogger(stderr, cfg.LogLevel)
	var fileLog *logger.FileLogger
	if cfg.LogDir != "" {
		fileLog, err = logger.NewFileLogger(cfg.LogDir, cfg.LogLevel, runID)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		defer fileLog.Close()
	}
	log := logger.NewMultiLogger(consoleLog, fileSink(fileLog))

	log.LogDebug(fmt.Sprintf("Connecting to %s (%s backend)", cfg.Target(), cfg.Backend))
	pool, err := openPool(ctx, cfg)
	if err != nil {
		log.LogError(err.Error())
		return err
	}
	defer pool.Close()
	log.LogDebug(fmt.Sprintf("Connected; up to %d session(s) for %d worker(s)", pool.Size(), cfg.Workers))

	out := stdout
	if cfg.Output != "" {
		f, openErr := filelock.OpenOutput(cfg.Output)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output: %w", closeErr)
			}
		}()
		out = f
	}

	w := walker.New(pool, out, log, walker.Options{
		Root:       cfg.Path,
		Workers:    cfg.Workers,
		Printers:   cfg.Printers,
		FileBuffer: cfg.FileBuffer,
		RunID:      runID,
	})

	if _, err := w.Run(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timeout of %v exceeded: %w", cfg.Timeout, err)
		}
		return err
	}
	return nil
}

// fileSink avoids handing MultiLogger a typed nil.
func fileSink(fl *logger.FileLogger) logger.Sink {
	if fl == nil {
		return nil
	}
	return fl
}
