package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/app"
)

func newListCmd() *cobra.Command {
	var (
		flags   queryFlags
		storeDB bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists document metadata as JSON lines",
		Example: `  satscraper list --type received --since 2024-01-01 --until 2024-01-31
  satscraper list --type issued --uuid 5cc88a1a-8869-11ec-a8a3-0242ac120002`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			downloadType, list, err := flags.run(ctx, appInstance.Scraper())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, item := range list.Items() {
				if err := enc.Encode(item); err != nil {
					return fmt.Errorf("write metadata: %w", err)
				}
			}
			reportLimitHits(cmd, appInstance)

			if !storeDB {
				return nil
			}
			repo, err := appInstance.MetadataRepository(ctx)
			if errors.Is(err, app.ErrNotConfigured) {
				return errors.New("--store-db requires db.dsn")
			}
			if err != nil {
				return err
			}
			saved, err := repo.SaveMetadata(ctx, downloadType, list)
			if err != nil {
				return err
			}
			appInstance.Logger().Info("metadata stored", zap.Int("count", saved))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&storeDB, "store-db", false, "upsert the listed metadata into Postgres")
	return cmd
}

func reportLimitHits(cmd *cobra.Command, appInstance *app.App) {
	for _, hit := range appInstance.LimitHits() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s documents at %s exceed the portal limit, some were not listed\n",
			hit.DownloadType, hit.Moment.Format("2006-01-02 15:04:05"))
	}
}
