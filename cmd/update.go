package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geotargets-cli/internal/config"
	"github.com/sells-group/geotargets-cli/internal/fetcher"
	"github.com/sells-group/geotargets-cli/internal/mirror"
	"github.com/sells-group/geotargets-cli/internal/table"
	"github.com/sells-group/geotargets-cli/internal/updater"
)

var (
	updateDir      string
	updateFilename string
	updateCountry  string
	updateSource   string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download the latest geo targets table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyUpdateFlags(cfg)
		if err := cfg.Validate("update"); err != nil {
			return usageErrorf("%s", err.Error())
		}

		u, cleanup, err := newUpdater(ctx, cfg)
		if err != nil {
			return &commandError{prefix: "Update failed", err: err}
		}
		defer cleanup()

		res, err := u.Run(ctx, updater.Request{})
		if err != nil {
			return &commandError{prefix: "Update failed", err: err}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved table to: %s\n", res.Path) //nolint:errcheck
		return nil
	},
}

// applyUpdateFlags overrides config values with flags set on the command line.
func applyUpdateFlags(c *config.Config) {
	if updateDir != "" {
		c.Table.Dir = updateDir
	}
	if updateFilename != "" {
		c.Table.Filename = updateFilename
	}
	if updateCountry != "" {
		c.Table.Country = table.NormalizeCountry(updateCountry)
	}
	if updateSource != "" {
		c.Source.PageURL = updateSource
	}
}

// newUpdater wires the fetcher and, when a bucket is configured, the GCS
// mirror. cleanup releases the storage client.
func newUpdater(ctx context.Context, c *config.Config) (*updater.Updater, func(), error) {
	cleanup := func() {}
	var options []updater.Option

	if c.Mirror.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() {
			if err := client.Close(); err != nil {
				zap.L().Warn("close storage client", zap.Error(err))
			}
		}
		pub, err := mirror.NewGCS(client, mirror.GCSConfig{
			Bucket:       c.Mirror.GCSBucket,
			ObjectPrefix: c.Mirror.ObjectPrefix,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		options = append(options, updater.WithPublisher(pub))
	}

	u := updater.New(fetcher.New(c.Source.FetcherOptions()), updater.Options{
		SourcePageURL: c.Source.PageURL,
		Origin:        c.Source.Origin,
		TargetDir:     c.Table.Dir,
		Filename:      c.Table.Filename,
		Country:       c.Table.Country,
		TempDir:       c.Table.TempDir,
	}, options...)
	return u, cleanup, nil
}

func init() {
	updateCmd.Flags().StringVar(&updateDir, "dir", "", "target directory (default from config)")
	updateCmd.Flags().StringVar(&updateFilename, "filename", "", "target filename (default from config)")
	updateCmd.Flags().StringVar(&updateCountry, "country", "", "keep only rows with this country code, e.g. DE")
	updateCmd.Flags().StringVar(&updateSource, "source", "", "source page URL (default from config)")
	rootCmd.AddCommand(updateCmd)
}
