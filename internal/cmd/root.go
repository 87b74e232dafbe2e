// Package cmd implements the crestctl command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestkit/crestctl/internal/config"
	"github.com/crestkit/crestctl/internal/logging"
)

var (
	flagConfig  string
	flagDebug   bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "crestctl",
	Short: "Manage Crestron control processors over SSH",
	Long: `crestctl is a toolkit for Crestron AV control processors.

It provides an interactive pass-through console session with automatic
reconnection, program archive upload over SFTP, and IP table management,
driven by a named device address book.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if flagDebug {
			level = "debug"
		}
		logging.Setup(logging.Options{
			Level:  level,
			JSON:   flagLogJSON,
			Writer: os.Stderr,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $XDG_CONFIG_HOME/crestctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
}

// Execute runs the command tree and returns the process exit code:
// 0 success, 1 argument or config errors, 2 connection errors, 3 device
// operation failures.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crestctl: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// codedError carries a process exit code alongside the cause.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// connErr marks err as a connection failure (exit code 2).
func connErr(err error) error { return &codedError{code: 2, err: err} }

// opErr marks err as a device operation failure (exit code 3).
func opErr(err error) error { return &codedError{code: 3, err: err} }

func exitCode(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return 1
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath returns the path loadConfig reads.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.DefaultConfigPath()
}
