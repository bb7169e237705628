// Command todayfeedd serves the Today Feed cache and administers its store.
//
//	todayfeedd serve                       run the HTTP API and background timers
//	todayfeedd rollout show                print the persisted rollout state
//	todayfeedd rollout set-phase NAME      move to a rollout phase
//	todayfeedd cache wipe                  clear cached content and sync state
//
// Configuration comes from the environment (and .env when present).
//
// @title        Today Feed Cache API
// @version      1.0
// @description  Offline-first cache for the daily Today Feed: content fallback, interaction sync, and rollout gating.
// @BasePath     /api/v1
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/today-feed-cache/internal/config"
	"github.com/tbourn/today-feed-cache/internal/sysutil"

	_ "time/tzdata"
)

var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:           "todayfeedd",
	Short:         "Today Feed cache service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "todayfeedd %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, serveCmd, rolloutCmd, cacheCmd)
}

// loadConfig reads .env (if any), the environment, and installs the logger.
func loadConfig() (config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger := sysutil.Component("main")
		logger.Error().Err(err).Msg("todayfeedd failed")
		os.Exit(1)
	}
}
