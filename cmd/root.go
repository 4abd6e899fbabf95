// Package cmd defines and implements the CLI commands for the satscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/app"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/config"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/logging"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// skipAppAnnotation marks commands that run without credentials or network services.
const skipAppAnnotation = "satscraper/skip-app"

// newApp is the application factory. It's a variable so tests can inject a fake transport.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "satscraper",
		Short: "Lists and downloads CFDI documents from the SAT portal.",
		Long: `satscraper logs into the SAT CFDI portal with an RFC and CIEC, lists issued or
received document metadata for any period or set of UUIDs, and downloads their XML,
PDF and cancellation files.

Configuration comes from --config and SATSCRAPER_* environment variables.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipAppAnnotation] == "true" {
				return nil
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close(context.WithoutCancel(cmd.Context()))
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newCatalogsCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "satscraper:", err)
		os.Exit(1)
	}
}
