package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pverne/scanledger/internal/config"
	"github.com/pverne/scanledger/internal/cropper"
	httpapi "github.com/pverne/scanledger/internal/http"
	"github.com/pverne/scanledger/internal/marketplace"
	"github.com/pverne/scanledger/internal/observability"
	"github.com/pverne/scanledger/internal/repo"
	"github.com/pverne/scanledger/internal/services"
	"github.com/pverne/scanledger/internal/sysutil"
	"github.com/pverne/scanledger/internal/vision"
)

// version is stamped by the build; "dev" outside releases.
var version = "dev"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Starts the scanledger API: upload ingestion, artifact cache,
session activity, and marketplace listing endpoints. Configuration comes from
the environment (see .env.example); --db-path overrides DB_PATH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbPathFlag != "" {
				cfg.DBPath = dbPathFlag
			}
			sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty)
			gin.SetMode(cfg.GinMode)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
			if err != nil {
				return fmt.Errorf("otel setup: %w", err)
			}
			defer func() {
				c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTel(c); err != nil {
					log.Warn().Err(err).Msg("otel shutdown")
				}
			}()

			db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled})
			if err != nil {
				return fmt.Errorf("%w: %v", services.ErrStoreUnavailable, err)
			}
			if err := repo.Migrate(db); err != nil {
				return fmt.Errorf("%w: %v", services.ErrStoreUnavailable, err)
			}

			collab := httpapi.Collaborators{
				Cropper: cropper.NewLumaCropper(),
				Extractor: vision.NewOpenAIExtractor(
					cfg.Vision.Endpoint, cfg.Vision.APIKey, cfg.Vision.Model, cfg.Vision.Timeout),
				Marketplace: marketplace.NewHTTPClient(
					cfg.Marketplace.Endpoint, cfg.Marketplace.Token, cfg.Marketplace.Timeout),
			}
			// The marketplace client also answers taxonomy queries.
			if tax, okTax := collab.Marketplace.(marketplace.Taxonomy); okTax {
				collab.Taxonomy = tax
			}

			r := gin.New()
			httpapi.RegisterRoutes(r, db, collab, cfg)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           r,
				ReadTimeout:       cfg.ReadTimeout,
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
				WriteTimeout:      cfg.WriteTimeout,
				IdleTimeout:       cfg.IdleTimeout,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				log.Info().Msg("server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}
}
