package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pverne/scanledger/internal/config"
	"github.com/pverne/scanledger/internal/repo"
	"github.com/pverne/scanledger/internal/services"
	"github.com/pverne/scanledger/internal/sysutil"
	"gorm.io/gorm"
)

// newRepairCmd groups the operator-facing cache and listing repair tools.
func newRepairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Operator tools for cached artifacts and failed listings",
	}
	cmd.AddCommand(newRepairRepointCmd())
	cmd.AddCommand(newRepairInvalidateCmd())
	cmd.AddCommand(newRepairFailedCmd())
	return cmd
}

// repairDB loads config, applies the --db-path override, and opens the store.
func repairDB() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty)

	db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrStoreUnavailable, err)
	}
	if err := repo.Migrate(db); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrStoreUnavailable, err)
	}
	return db, nil
}

// newRepairRepointCmd recovers a scan's derived files into a new directory.
//
// It validates the cached paths, copies whatever still exists (from the
// cached locations or the extra --source dirs) into --dest, and re-points
// derived_paths at the copies. When nothing survives anywhere the
// artifact is reported stale and left for a recompute.
func newRepairRepointCmd() *cobra.Command {
	var sources []string
	var dest string

	cmd := &cobra.Command{
		Use:   "repoint <scan-id>",
		Short: "Repair a scan's derived files by copy and update its paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				return fmt.Errorf("--dest is required")
			}
			db, err := repairDB()
			if err != nil {
				return err
			}

			cache := &services.CacheService{DB: db, Log: log.Logger}
			paths, err := cache.Repair(cmd.Context(), args[0], sources, dest)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			log.Info().Str("scan_id", args[0]).Int("files", len(paths)).Msg("repointed")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "extra files to repair from (repeatable)")
	cmd.Flags().StringVar(&dest, "dest", "", "directory the recovered files are copied into")
	return cmd
}

// newRepairInvalidateCmd clears the processed marker so the next upload of
// the same content recomputes from scratch.
func newRepairInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <scan-id>",
		Short: "Force-invalidate a scan's cached artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := repairDB()
			if err != nil {
				return err
			}
			cache := &services.CacheService{DB: db, Log: log.Logger}
			if err := cache.Invalidate(cmd.Context(), args[0]); err != nil {
				return err
			}
			log.Info().Str("scan_id", args[0]).Msg("artifact invalidated")
			return nil
		},
	}
}

// newRepairFailedCmd lists failed listings with their terminal error detail,
// the operator's queue for manual correction.
func newRepairFailedCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List failed listings with their error detail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := repairDB()
			if err != nil {
				return err
			}
			svc := &services.ListingService{DB: db, Log: log.Logger}
			items, err := svc.FailedListings(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			for _, l := range items {
				detail := ""
				if l.ErrorDetail != nil {
					detail = *l.ErrorDetail
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tscan=%s\t%q\t%s\n", l.SKU, l.ScanID, l.Title, detail)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}
