package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/gpfind/internal/config"
	"github.com/harrison/gpfind/internal/volume"
)

// NewCheckCommand creates and returns the check subcommand
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that a volume and its start directory are reachable",
		Long: `Connect to the volume, ping it, and open the start directory without
traversing it. Useful before a long find run.

Exit code: 0 if the volume is reachable, 1 otherwise`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return check(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	addVolumeFlags(cmd)

	return cmd
}

// check reports on the reachability of cfg's volume and start directory.
func check(ctx context.Context, cfg *config.Config, output io.Writer) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	fmt.Fprintf(output, "Checking %s (%s backend)\n", cfg.Target(), cfg.Backend)

	pool, err := openPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(output, "✗ Connection failed: %v\n", err)
		return err
	}
	defer pool.Close()
	fmt.Fprintf(output, "✓ Connected\n")

	entries, err := probeDir(ctx, pool, cfg.Path)
	if err != nil {
		fmt.Fprintf(output, "✗ Cannot read %s: %v\n", cfg.Path, err)
		return fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	fmt.Fprintf(output, "✓ %s is readable (%d entries)\n", cfg.Path, entries)
	return nil
}

// probeDir opens dir and counts its entries, excluding "." and "..".
func probeDir(ctx context.Context, pool *volume.Pool, dir string) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer pool.Release(conn)

	r, err := conn.OpenDir(ctx, dir)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for {
		e, err := r.Next(ctx)
		if errors.Is(err, volume.EOD) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if !e.IsSelfOrParent() {
			n++
		}
	}
}
