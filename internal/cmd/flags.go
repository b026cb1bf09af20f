package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/gpfind/internal/config"
)

// addVolumeFlags registers the flags that select and locate the volume.
func addVolumeFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .gpfind/config.yaml)")
	cmd.Flags().String("backend", config.BackendLocal, "Volume client: local, minio or s3")
	cmd.Flags().StringP("server", "s", "", "Volume server host (export root for the local backend)")
	cmd.Flags().Int("port", config.DefaultPort, "Volume server port")
	cmd.Flags().StringP("volume", "v", "", "Volume name (bucket for object stores)")
	cmd.Flags().StringP("path", "p", "/", "Directory to start from")
	cmd.Flags().String("timeout", "", "Maximum run time (e.g., 30s, 10m, 1h)")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().Bool("verbose", false, "Shortcut for --log-level debug")
}

// loadConfig reads the config file and applies environment and flag
// overrides in that order. Only flags set on the command line override the
// file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()

	var o config.Overrides
	flags := cmd.Flags()

	stringFlag := func(name string, dst **string) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			v, _ := flags.GetString(name)
			*dst = &v
		}
	}
	intFlag := func(name string, dst **int) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			v, _ := flags.GetInt(name)
			*dst = &v
		}
	}

	stringFlag("backend", &o.Backend)
	stringFlag("server", &o.Server)
	intFlag("port", &o.Port)
	stringFlag("volume", &o.Volume)
	stringFlag("path", &o.Path)
	intFlag("workers", &o.Workers)
	intFlag("printers", &o.Printers)
	intFlag("file-buffer", &o.FileBuffer)
	intFlag("pool-size", &o.PoolSize)
	stringFlag("log-level", &o.LogLevel)
	stringFlag("log-dir", &o.LogDir)
	stringFlag("output", &o.Output)

	if flags.Changed("timeout") {
		timeoutStr, _ := flags.GetString("timeout")
		timeout, err := parseTimeout(timeoutStr)
		if err != nil {
			return nil, err
		}
		o.Timeout = &timeout
	}

	if verbose, _ := flags.GetBool("verbose"); verbose && o.LogLevel == nil {
		debug := "debug"
		o.LogLevel = &debug
	}

	cfg.MergeWithFlags(o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseTimeout(s string) (time.Duration, error) {
	timeout, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout format %q: %w", s, err)
	}
	return timeout, nil
}
