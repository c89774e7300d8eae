package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the query cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.configPath)
		},
	})
	return cmd
}

// runCachePurge empties the configured cache backend. With the memory
// backend this only affects the current process, so it is useful for
// SQLite and Redis.
func runCachePurge(ctx context.Context, stdout, stderr io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)

	store, err := openCache(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Purge(ctx); err != nil {
		return fmt.Errorf("purge %s: %w", cfg.Cache.URL, err)
	}
	fmt.Fprintf(stdout, "Cache purged (%s)\n", cfg.Cache.URL)
	return nil
}
