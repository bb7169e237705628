// Package services – MigrationManager
//
// MigrationManager gates the new content path against the legacy one. The
// phase is set administratively and never advances by itself. Two
// kill-switches, rollback and force-compatibility, short-circuit every phase
// to the legacy path. During gradual rollout a strategy selects users;
// percentage-based selection hashes the user id so a user always gets the
// same answer for a fixed percentage.
//
// State lives in the migration partition and survives cache schema wipes.
package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/config"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

// DefaultMigrationState is used for keys that were never written.
var DefaultMigrationState = domain.MigrationState{
	Phase:    domain.PhaseCompatibilityOnly,
	Strategy: domain.StrategyPercentage,
}

// MigrationManager is the rollout gate.
type MigrationManager struct {
	DB     *gorm.DB
	Config config.RolloutConfig

	initFlag
	mu    sync.RWMutex
	state domain.MigrationState
}

// Name implements Service.
func (m *MigrationManager) Name() string { return NameMigration }

// Init loads the persisted state. Unreadable keys fall back to defaults.
func (m *MigrationManager) Init(ctx context.Context) error {
	if m.DB == nil {
		return fmt.Errorf("%w: migration manager needs a store", ErrInvalidConfig)
	}
	st := DefaultMigrationState
	load := func(key string, dst any) {
		if err := repo.GetJSON(ctx, m.DB, key, dst); err != nil && !errors.Is(err, repo.ErrNotFound) {
			logger := sysutil.Component(NameMigration)
			logger.Warn().Err(err).Str("key", key).Msg("rollout state unreadable; using default")
		}
	}
	load(domain.KeyMigrationPhase, &st.Phase)
	load(domain.KeyMigrationStrategy, &st.Strategy)
	load(domain.KeyMigrationPercentage, &st.Percentage)
	load(domain.KeyMigrationRollback, &st.Rollback)
	load(domain.KeyMigrationForceCompat, &st.ForceCompatibility)

	if !st.Phase.Valid() {
		st.Phase = DefaultMigrationState.Phase
	}
	if _, err := domain.ParseStrategy(string(st.Strategy)); err != nil {
		st.Strategy = DefaultMigrationState.Strategy
	}
	if st.Percentage < 0 || st.Percentage > 100 {
		st.Percentage = 0
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	m.on.Store(true)
	return nil
}

// Dispose implements Service.
func (m *MigrationManager) Dispose(ctx context.Context) error {
	m.on.Store(false)
	return nil
}

// State returns the current rollout state.
func (m *MigrationManager) State() (domain.MigrationState, error) {
	if err := m.guard(); err != nil {
		return domain.MigrationState{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

// ShouldUseNewArchitecture reports whether user gets the new path. It is
// false when the manager is not initialized.
func (m *MigrationManager) ShouldUseNewArchitecture(ctx context.Context, user domain.UserContext) bool {
	d, err := m.Decide(ctx, user)
	return err == nil && d.UseNew
}

// Decide evaluates the gate for user and explains the outcome.
func (m *MigrationManager) Decide(ctx context.Context, user domain.UserContext) (domain.RolloutDecision, error) {
	_, span := otel.Tracer("services/MigrationManager").Start(ctx, "Decide",
		trace.WithAttributes(attribute.String("user.id", user.ID)),
	)
	defer span.End()

	st, err := m.State()
	if err != nil {
		return domain.RolloutDecision{}, err
	}
	d := m.decide(st, user)
	span.SetAttributes(attribute.Bool("use_new", d.UseNew), attribute.String("reason", d.Reason))
	metrics.RolloutDecisions.WithLabelValues(metrics.PathLabel(d.UseNew)).Inc()
	return d, nil
}

func (m *MigrationManager) decide(st domain.MigrationState, user domain.UserContext) domain.RolloutDecision {
	d := domain.RolloutDecision{Phase: st.Phase}
	switch {
	case st.ForceCompatibility:
		d.Reason = "force compatibility enabled"
		return d
	case st.Rollback:
		d.Reason = "rollback active"
		return d
	}

	internal := user.IsInternal || m.Config.IsInternalUser(user.ID)
	switch st.Phase {
	case domain.PhaseCompatibilityOnly:
		d.Reason = "compatibility only"
	case domain.PhaseInternalTesting:
		d.UseNew = internal || m.isDev()
		d.Reason = "internal testing"
	case domain.PhaseGradualRollout:
		d.UseNew = m.strategy(st, user.ID, internal)
		d.Reason = "gradual rollout: " + string(st.Strategy)
	case domain.PhaseFullDeployment, domain.PhaseLegacyRemoval:
		d.UseNew = true
		d.Reason = st.Phase.String()
	default:
		d.Reason = "unknown phase"
	}
	return d
}

func (m *MigrationManager) strategy(st domain.MigrationState, userID string, internal bool) bool {
	switch st.Strategy {
	case domain.StrategyAllUsers:
		return true
	case domain.StrategyPercentage:
		return Bucket(userID) < st.Percentage
	case domain.StrategyUserIDHash:
		return Bucket(m.Config.Salt+":"+userID) < st.Percentage
	case domain.StrategyInternalOnly:
		return internal
	case domain.StrategyDevOnly:
		return m.isDev()
	}
	return false
}

func (m *MigrationManager) isDev() bool {
	return strings.EqualFold(m.Config.Environment, "development")
}

// Bucket maps s to a stable value in [0, 100).
func Bucket(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % 100)
}

// SetPhase sets the rollout phase.
func (m *MigrationManager) SetPhase(ctx context.Context, p domain.Phase) error {
	if !p.Valid() {
		return ErrInvalidPhase
	}
	return m.update(ctx, domain.KeyMigrationPhase, p, func(st *domain.MigrationState) { st.Phase = p })
}

// SetStrategy sets the gradual rollout strategy.
func (m *MigrationManager) SetStrategy(ctx context.Context, s domain.RolloutStrategy) error {
	if _, err := domain.ParseStrategy(string(s)); err != nil {
		return err
	}
	return m.update(ctx, domain.KeyMigrationStrategy, s, func(st *domain.MigrationState) { st.Strategy = s })
}

// SetPercentage sets the rollout percentage (0..100).
func (m *MigrationManager) SetPercentage(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercentage
	}
	return m.update(ctx, domain.KeyMigrationPercentage, pct, func(st *domain.MigrationState) { st.Percentage = pct })
}

// SetRollback sets or clears the rollback kill-switch.
func (m *MigrationManager) SetRollback(ctx context.Context, on bool) error {
	return m.update(ctx, domain.KeyMigrationRollback, on, func(st *domain.MigrationState) { st.Rollback = on })
}

// SetForceCompatibility sets or clears the force-compatibility kill-switch.
func (m *MigrationManager) SetForceCompatibility(ctx context.Context, on bool) error {
	return m.update(ctx, domain.KeyMigrationForceCompat, on, func(st *domain.MigrationState) { st.ForceCompatibility = on })
}

// update persists one key, then applies the change in memory.
func (m *MigrationManager) update(ctx context.Context, key string, v any, apply func(*domain.MigrationState)) error {
	ctx, span := otel.Tracer("services/MigrationManager").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	if err := m.guard(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := repo.PutJSON(ctx, m.DB, key, v); err != nil {
		return err
	}
	before := m.state
	apply(&m.state)

	logger := sysutil.Component(NameMigration)
	logger.Info().
		Str("key", key).
		Interface("before", before).
		Interface("after", m.state).
		Msg("rollout state changed")
	return nil
}
