// Package cmd defines the scanledger command-line interface.
package cmd

import (
	"errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pverne/scanledger/internal/services"
)

// Exit codes reported to the shell. Scripts driving the repair commands
// branch on these.
const (
	ExitOK               = 0
	ExitValidation       = 1
	ExitStoreUnavailable = 2
)

// dbPathFlag overrides DB_PATH for every subcommand when set.
var dbPathFlag string

// NewRootCmd builds the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanledger",
		Short: "Scan ingestion, artifact cache, and marketplace listing sync",
		Long: `Scanledger ingests scanned collectible sheets, deduplicates them by
content fingerprint, caches crop geometry and AI-extracted metadata, keeps an
append-only per-session activity log, and synchronizes listings with an
external marketplace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env if present; absence is not an error.
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "SQLite database path (overrides DB_PATH)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRepairCmd())

	return cmd
}

// Execute runs the CLI and maps the resulting error to a process exit code:
// 0 success, 1 validation or usage failure, 2 datastore unavailable.
func Execute() int {
	err := NewRootCmd().Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, services.ErrStoreUnavailable):
		return ExitStoreUnavailable
	default:
		return ExitValidation
	}
}
