package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/app"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/resource"
)

// failureCollector counts item failures while delegating successes.
type failureCollector struct {
	resource.Handler
	mu       sync.Mutex
	failures []*resource.DownloadError
}

func (c *failureCollector) OnError(ctx context.Context, err *resource.DownloadError) {
	c.mu.Lock()
	c.failures = append(c.failures, err)
	c.mu.Unlock()
	c.Handler.OnError(ctx, err)
}

func newDownloadCmd() *cobra.Command {
	var (
		flags        queryFlags
		resourceName string
		concurrency  int
		output       string
		topic        string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Lists documents and downloads one resource type for each",
		Long: `download lists metadata exactly like list and then fetches the requested resource
of every row. Files go to --output when given, otherwise to the configured storage backend.`,
		Example: `  satscraper download --type issued --since 2024-01-01 --until 2024-01-31 --resource xml --output ./cfdi`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			resourceType, err := portal.ParseResourceType(resourceName)
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if concurrency <= 0 {
				concurrency = cfg.Download.Concurrency
			}

			_, list, err := flags.run(ctx, appInstance.Scraper())
			if err != nil {
				return err
			}
			reportLimitHits(cmd, appInstance)
			linked := list.FilterWithResourceLink(resourceType)
			d := appInstance.Scraper().ResourceDownloader(resourceType, linked, concurrency)

			var (
				succeeded []string
				failures  []*resource.DownloadError
			)
			if output != "" {
				if err := resource.PrepareFolder(appInstance.FS(), output, cfg.Download.CreateDir); err != nil {
					return err
				}
				collector := &failureCollector{Handler: resource.NewFolderHandler(appInstance.FS(), output, resourceType, appInstance.Logger())}
				succeeded, err = d.Download(ctx, collector)
				failures = collector.failures
			} else {
				var handler resource.Handler
				handler, err = blobHandler(ctx, appInstance, resourceType, topic)
				if err != nil {
					return err
				}
				collector := &failureCollector{Handler: handler}
				succeeded, err = d.Download(ctx, collector)
				failures = collector.failures
			}
			if err != nil {
				return err
			}

			for _, failure := range failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", failure.UUID, failure)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d of %d %s resources (%d listed)\n",
				len(succeeded), linked.Len(), resourceType, list.Len())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&resourceName, "resource", "xml", "xml|pdf|cancel-request|cancel-voucher")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel downloads (default download.concurrency)")
	cmd.Flags().StringVar(&output, "output", "", "save files into this folder instead of the storage backend")
	cmd.Flags().StringVar(&topic, "event", "document.stored", "event name attached to Pub/Sub notifications")
	return cmd
}

func blobHandler(ctx context.Context, appInstance *app.App, resourceType portal.ResourceType, topic string) (resource.Handler, error) {
	cfg := appInstance.Config()
	blobs, err := appInstance.BlobStore(ctx)
	if err != nil {
		return nil, err
	}
	var opts []resource.BlobHandlerOption
	publisher, err := appInstance.Publisher(ctx)
	switch {
	case err == nil:
		opts = append(opts, resource.WithPublisher(publisher, topic))
	case !errors.Is(err, app.ErrNotConfigured):
		return nil, err
	}
	prefix := cfg.Storage.Prefix
	if prefix == "" {
		prefix = appInstance.Session().Data().RFC()
	}
	appInstance.Logger().Debug("storing documents",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("prefix", prefix),
	)
	return resource.NewBlobHandler(blobs, prefix, resourceType, appInstance.Logger(), opts...), nil
}

var _ resource.Fetcher = (*gateway.Gateway)(nil)
