package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for gpfind
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gpfind",
		Short: "Parallel file finder for remote volumes",
		Long: `gpfind walks a remote volume with a pool of concurrent workers and
prints the full path of every regular file it finds, one per line.

Directories that cannot be opened or read are reported on stderr and
skipped; the rest of the tree is still traversed.`,
		Version: Version,
		// Silence usage and errors; main prints the error once
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add subcommands
	cmd.AddCommand(NewFindCommand())
	cmd.AddCommand(NewCheckCommand())

	return cmd
}
