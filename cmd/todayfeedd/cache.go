package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/today-feed-cache/internal/services"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the cache store",
}

var cacheWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Clear cached content, sync state and warming stats (rollout state is kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cfg)(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()

		n, err := services.WipeCache(ctx, db, cfg.Cache.SchemaVersion)
		if err != nil {
			return err
		}
		logger := sysutil.Component("main")
		logger.Info().Int64("entries", n).Int("schema_version", cfg.Cache.SchemaVersion).Msg("cache wiped")
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheWipeCmd)
}
