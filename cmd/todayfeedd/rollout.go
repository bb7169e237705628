package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/services"
)

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Inspect and change the rollout gate",
}

func init() {
	rolloutCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the persisted rollout state",
			Args:  cobra.NoArgs,
			RunE: withGate(func(ctx context.Context, m *services.MigrationManager, _ []string) error {
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-phase PHASE",
			Short: "Set the phase (compatibility_only, internal_testing, gradual_rollout, full_deployment, legacy_removal)",
			Args:  cobra.ExactArgs(1),
			RunE: withGate(func(ctx context.Context, m *services.MigrationManager, args []string) error {
				p, err := domain.ParsePhase(args[0])
				if err != nil {
					return err
				}
				return m.SetPhase(ctx, p)
			}),
		},
		&cobra.Command{
			Use:   "set-strategy STRATEGY",
			Short: "Set the gradual rollout strategy (all_users, percentage, user_id_hash, internal_only, dev_only)",
			Args:  cobra.ExactArgs(1),
			RunE: withGate(func(ctx context.Context, m *services.MigrationManager, args []string) error {
				s, err := domain.ParseStrategy(args[0])
				if err != nil {
					return err
				}
				return m.SetStrategy(ctx, s)
			}),
		},
		&cobra.Command{
			Use:   "set-percentage N",
			Short: "Set the rollout percentage (0..100)",
			Args:  cobra.ExactArgs(1),
			RunE: withGate(func(ctx context.Context, m *services.MigrationManager, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("percentage: %w", err)
				}
				return m.SetPercentage(ctx, n)
			}),
		},
		&cobra.Command{
			Use:   "rollback on|off",
			Short: "Toggle the rollback kill switch",
			Args:  cobra.ExactArgs(1),
			RunE: withGate(func(ctx context.Context, m *services.MigrationManager, args []string) error {
				on, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				return m.SetRollback(ctx, on)
			}),
		},
		&cobra.Command{
			Use:   "force-compat on|off",
			Short: "Toggle the force-compatibility kill switch",
			Args:  cobra.ExactArgs(1),
			RunE: withGate(func(ctx context.Context, m *services.MigrationManager, args []string) error {
				on, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				return m.SetForceCompatibility(ctx, on)
			}),
		},
	)
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// withGate opens the store, runs fn against an initialized rollout gate and
// prints the resulting state as JSON.
func withGate(fn func(ctx context.Context, m *services.MigrationManager, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
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

		m := &services.MigrationManager{DB: db, Config: cfg.Rollout}
		if err := m.Init(ctx); err != nil {
			return err
		}
		if err := fn(ctx, m, args); err != nil {
			return err
		}
		st, err := m.State()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
}
