package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/carid/internal/bootstrap"
	"github.com/Brownie44l1/carid/internal/config"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the model and sample dataset if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchAssets(cmd.Context(), opts.cfg, opts.logger)
		},
	}
}

// fetchAssets runs the first-start download. It is a no-op when no URLs
// are configured or the targets already exist.
func fetchAssets(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Bootstrap.ModelURL == "" && cfg.Bootstrap.DatasetURL == "" {
		logger.Debug("bootstrap skipped: no urls configured")
		return nil
	}
	if cfg.Bootstrap.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
		defer cancel()
	}
	return bootstrap.Run(ctx, bootstrap.Options{
		ModelURL:   cfg.Bootstrap.ModelURL,
		ModelPath:  cfg.Model.Path,
		DatasetURL: cfg.Bootstrap.DatasetURL,
		StaticDir:  cfg.Samples.StaticDir,
		DatasetDir: cfg.Samples.DatasetDir,
		Client:     &http.Client{},
		Logger:     logger,
	})
}
