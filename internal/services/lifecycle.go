// Package services – Lifecycle
//
// Lifecycle is the external entry and exit point of the cache. Initialize
// opens the store, validates configuration and brings the sibling services
// up in dependency order (content, health, timezone, sync, maintenance,
// warming). It then migrates the cache schema, runs one timezone detection
// pass and arms the recurring timers. Dispose cancels every timer first and
// then tears services down in reverse order, logging individual failures.
//
// The daily content refresh is armed separately by the caller through
// ScheduleNextRefresh.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/config"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

// fallbackRefreshInterval is used when the next refresh instant cannot be computed.
const fallbackRefreshInterval = 24 * time.Hour

// Timer names reported by State.
const (
	TimerTimezone    = "timezone_check"
	TimerMaintenance = "maintenance"
	TimerWarming     = "warming"
	TimerRefresh     = "refresh"
)

// StoreOpener opens the persistent store.
type StoreOpener func(ctx context.Context) (*gorm.DB, error)

// LifecycleState is a point-in-time view of the lifecycle manager.
type LifecycleState struct {
	Initialized bool     `json:"initialized"`
	TestMode    bool     `json:"test_mode"`
	Services    []string `json:"services"`
	Timers      []string `json:"timers"`
	Online      bool     `json:"online"`
}

// Lifecycle sequences the cache services and owns their timers.
type Lifecycle struct {
	Config    config.Config
	Clock     clock.Clock
	OpenStore StoreOpener
	Fetcher   Fetcher
	Syncer    Syncer

	// Populated by Initialize.
	DB          *gorm.DB
	Content     *ContentService
	Health      *HealthService
	Timezone    *TimezoneMonitor
	Sync        *SyncQueue
	Maintenance *Maintenance
	Warming     *WarmingCoordinator

	// nextRefresh defaults to Timezone.NextRefreshInstant; tests replace it.
	nextRefresh func(now time.Time) (time.Time, error)

	mu          sync.Mutex
	initialized bool
	ownsDB      bool
	started     []Service
	timers      map[string]clock.Timer
	gen         uint64
	bgCtx       context.Context
	online      bool
}

// Initialize brings the cache up. It is a no-op when already initialized.
// Any failure aborts and is returned; services initialized before the
// failure are left as they are.
func (l *Lifecycle) Initialize(ctx context.Context) error {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "Initialize",
		trace.WithAttributes(attribute.Bool("test_mode", l.Config.Cache.TestMode)),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return nil
	}
	logger := sysutil.Component("lifecycle")

	// (a) store
	if l.DB == nil {
		if l.OpenStore == nil {
			return fmt.Errorf("%w: no store", ErrInvalidConfig)
		}
		db, err := l.OpenStore(ctx)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		l.DB = db
		l.ownsDB = true
	}

	// (b) static configuration
	if err := l.validate(); err != nil {
		return err
	}
	l.wire()
	l.bgCtx = context.WithoutCancel(ctx)
	l.gen++

	// (c) headless mode: nothing else runs, no timers are created.
	if l.Config.Cache.TestMode {
		l.initialized = true
		metrics.LifecycleInitialized.Set(1)
		logger.Info().Msg("cache initialized in test mode")
		return nil
	}

	// (d) siblings in dependency order
	l.started = l.started[:0]
	for _, svc := range l.services() {
		if err := svc.Init(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", svc.Name(), err)
		}
		l.started = append(l.started, svc)
	}

	// (e) one-time schema migration
	if err := l.migrateSchema(ctx); err != nil {
		return fmt.Errorf("cache schema migration: %w", err)
	}

	// (f) one detection pass
	change, err := l.Timezone.Detect(ctx)
	if err != nil {
		return fmt.Errorf("timezone detection: %w", err)
	}

	// (g) recurring timers
	l.timers = make(map[string]clock.Timer)
	l.every(TimerTimezone, l.Config.Cache.TimezoneCheckInterval, l.checkTimezone)
	l.every(TimerMaintenance, l.Config.Cache.MaintenanceInterval, l.runMaintenance)
	if l.Config.Warming.Enabled && l.Config.Warming.Interval > 0 {
		l.every(TimerWarming, l.Config.Warming.Interval, l.warmPeriodic)
	}

	l.initialized = true
	metrics.LifecycleInitialized.Set(1)
	logger.Info().
		Int("services", len(l.started)).
		Int("timers", len(l.timers)).
		Msg("cache initialized")

	if change.ShouldRefresh {
		l.warm(ctx, domain.TriggerTimezone)
	}
	return nil
}

// Dispose cancels all timers, then disposes services in reverse
// initialization order. Individual failures are logged, never returned.
func (l *Lifecycle) Dispose(ctx context.Context) {
	ctx, span := otel.Tracer("services/Lifecycle").Start(ctx, "Dispose")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return
	}
	logger := sysutil.Component("lifecycle")

	l.gen++
	for name, t := range l.timers {
		t.Stop()
		delete(l.timers, name)
	}

	for i := len(l.started) - 1; i >= 0; i-- {
		svc := l.started[i]
		if err := disposeSafely(ctx, svc); err != nil {
			logger.Error().Err(err).Str("service", svc.Name()).Msg("dispose failed")
		}
	}
	l.started = nil
	l.initialized = false
	l.online = false
	metrics.LifecycleInitialized.Set(0)

	if l.ownsDB && l.DB != nil {
		if sqlDB, err := l.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Error().Err(err).Msg("close store")
			}
		}
		l.DB = nil
		l.ownsDB = false
	}
	logger.Info().Msg("cache disposed")
}

// disposeSafely turns a panicking Dispose into an error.
func disposeSafely(ctx context.Context, svc Service) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return svc.Dispose(ctx)
}

// ScheduleNextRefresh cancels any pending refresh and arms a one-shot timer
// for the next refresh instant. NextRefreshInstant always lies after now, so
// a negative delay only comes from an injected nextRefresh; it runs onRefresh
// immediately instead. When the instant cannot be computed a fixed 24h delay is used.
// After each timed firing the timer re-arms for the following day.
func (l *Lifecycle) ScheduleNextRefresh(ctx context.Context, onRefresh func(context.Context)) error {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return ErrNotInitialized
	}
	if l.Config.Cache.TestMode {
		l.mu.Unlock()
		return nil
	}
	if t := l.timers[TimerRefresh]; t != nil {
		t.Stop()
		delete(l.timers, TimerRefresh)
	}

	logger := sysutil.Component("lifecycle")
	now := l.Clock.Now()
	next := l.nextRefresh
	if next == nil {
		next = l.Timezone.NextRefreshInstant
	}
	delay := fallbackRefreshInterval
	if at, err := next(now); err != nil {
		logger.Warn().Err(err).Dur("delay", delay).Msg("next refresh instant unavailable; using fixed interval")
	} else {
		delay = at.Sub(now)
	}

	if delay < 0 {
		l.mu.Unlock()
		logger.Info().Dur("delay", delay).Msg("refresh overdue; running now")
		onRefresh(ctx)
		return nil
	}

	gen := l.gen
	bg := l.bgCtx
	l.timers[TimerRefresh] = l.Clock.AfterFunc(delay, func() {
		if !l.live(gen, TimerRefresh) {
			return
		}
		onRefresh(bg)
		if err := l.ScheduleNextRefresh(bg, onRefresh); err != nil && !errors.Is(err, ErrNotInitialized) {
			logger.Warn().Err(err).Msg("re-arm refresh")
		}
	})
	l.mu.Unlock()
	logger.Info().Time("at", now.Add(delay)).Dur("delay", delay).Msg("next refresh scheduled")
	return nil
}

// OnConnectivityChange reacts to the connectivity signal. A transition to
// online drains the sync queue and runs a connectivity warming pass.
// Failures are logged; the signal itself never fails.
func (l *Lifecycle) OnConnectivityChange(ctx context.Context, online bool) error {
	l.mu.Lock()
	if !l.initialized {
		l.mu.Unlock()
		return ErrNotInitialized
	}
	was := l.online
	l.online = online
	testMode := l.Config.Cache.TestMode
	l.mu.Unlock()

	if !online || was || testMode {
		return nil
	}

	logger := sysutil.Component("lifecycle")
	logger.Info().Msg("connectivity restored")
	if _, err := l.Sync.Drain(ctx); err != nil {
		logger.Warn().Err(err).Msg("drain on reconnect")
	}
	l.warm(ctx, domain.TriggerConnectivity)
	return nil
}

// WatchConnectivity feeds OnConnectivityChange from ch until ctx is done or
// ch is closed.
func (l *Lifecycle) WatchConnectivity(ctx context.Context, ch <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online, ok := <-ch:
			if !ok {
				return nil
			}
			if err := l.OnConnectivityChange(ctx, online); err != nil {
				logger := sysutil.Component("lifecycle")
				logger.Warn().Err(err).Bool("online", online).Msg("connectivity signal ignored")
			}
		}
	}
}

// State reports the lifecycle state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := LifecycleState{
		Initialized: l.initialized,
		TestMode:    l.Config.Cache.TestMode,
		Online:      l.online,
	}
	for _, svc := range l.started {
		st.Services = append(st.Services, svc.Name())
	}
	for _, name := range []string{TimerTimezone, TimerMaintenance, TimerWarming, TimerRefresh} {
		if _, ok := l.timers[name]; ok {
			st.Timers = append(st.Timers, name)
		}
	}
	return st
}

// WipeCache clears the cache partitions and records schemaVersion. The
// migration partition is left alone.
func WipeCache(ctx context.Context, db *gorm.DB, schemaVersion int) (int64, error) {
	var removed int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range domain.CachePartitions {
			n, err := repo.DeletePartition(ctx, tx, p)
			if err != nil {
				return err
			}
			removed += n
		}
		_, err := repo.PutJSON(ctx, tx, domain.KeyCacheSchemaVersion, schemaVersion)
		return err
	})
	return removed, err
}

func (l *Lifecycle) migrateSchema(ctx context.Context) error {
	current := l.Config.Cache.SchemaVersion
	var stored int
	err := repo.GetJSON(ctx, l.DB, domain.KeyCacheSchemaVersion, &stored)
	switch {
	case err == nil && stored >= current:
		return nil
	case err != nil && !errors.Is(err, repo.ErrNotFound) && !errors.Is(err, repo.ErrCorrupt):
		return err
	}
	removed, err := WipeCache(ctx, l.DB, current)
	if err != nil {
		return err
	}
	logger := sysutil.Component("lifecycle")
	logger.Info().
		Int("from", stored).
		Int("to", current).
		Int64("entries_removed", removed).
		Msg("cache schema migrated")
	return nil
}

func (l *Lifecycle) validate() error {
	if err := l.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if l.Clock == nil {
		return fmt.Errorf("%w: no clock", ErrInvalidConfig)
	}
	if !l.Config.Cache.TestMode && (l.Fetcher == nil || l.Syncer == nil) {
		return fmt.Errorf("%w: remote collaborators missing", ErrInvalidConfig)
	}
	return nil
}

// wire constructs the services once; later calls refresh their store handle.
func (l *Lifecycle) wire() {
	c := l.Config
	loc := c.Cache.Location
	if l.Content == nil {
		l.Content = &ContentService{}
		l.Health = &HealthService{}
		l.Timezone = &TimezoneMonitor{}
		l.Sync = &SyncQueue{}
		l.Maintenance = &Maintenance{}
		l.Warming = &WarmingCoordinator{}
	}

	l.Maintenance.DB, l.Maintenance.Clock, l.Maintenance.MaxBytes = l.DB, l.Clock, c.Cache.MaxBytes
	l.Maintenance.EvictHistory = l.Content.EvictOldestHistory
	l.Maintenance.EvictSyncErrors = l.Sync.EvictOldestError
	l.Maintenance.PurgeSync = l.Sync.PurgeExpired

	l.Content.DB = l.DB
	l.Content.Clock = l.Clock
	l.Content.Location = loc
	l.Content.HistoryLimit = c.Cache.HistoryLimit
	l.Content.AgeWarning = c.Cache.AgeWarning
	l.Content.StaleNoticeInterval = c.Cache.StaleNoticeInterval
	l.Content.Budget = l.Maintenance

	l.Health.DB, l.Health.Clock, l.Health.MaxBytes = l.DB, l.Clock, c.Cache.MaxBytes
	l.Health.Content, l.Health.Sync = l.Content, l.Sync

	l.Timezone.DB, l.Timezone.Clock, l.Timezone.Location = l.DB, l.Clock, loc
	l.Timezone.RefreshHour = c.Cache.RefreshHour
	l.Timezone.LastRefresh = l.Content.LastRefresh

	l.Sync.DB, l.Sync.Clock, l.Sync.Remote, l.Sync.Config = l.DB, l.Clock, l.Syncer, c.Sync

	l.Warming.DB, l.Warming.Clock, l.Warming.Location = l.DB, l.Clock, loc
	l.Warming.Config = c.Warming
	l.Warming.Content, l.Warming.Fetcher = l.Content, l.Fetcher
}

// services lists the siblings in initialization order.
func (l *Lifecycle) services() []Service {
	return []Service{l.Content, l.Health, l.Timezone, l.Sync, l.Maintenance, l.Warming}
}

// every arms a recurring timer. Callers hold l.mu.
func (l *Lifecycle) every(name string, d time.Duration, fn func(context.Context)) {
	if d <= 0 {
		return
	}
	gen := l.gen
	var arm func()
	arm = func() {
		l.timers[name] = l.Clock.AfterFunc(d, func() {
			if !l.live(gen, name) {
				return
			}
			fn(l.bgCtx)
			l.mu.Lock()
			if l.gen == gen && l.initialized {
				arm()
			}
			l.mu.Unlock()
		})
	}
	arm()
}

// live reports whether a timer armed in generation gen may still fire.
func (l *Lifecycle) live(gen uint64, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen || !l.initialized {
		return false
	}
	delete(l.timers, name)
	return true
}

func (l *Lifecycle) checkTimezone(ctx context.Context) {
	change, err := l.Timezone.Detect(ctx)
	if err != nil {
		logger := sysutil.Component("lifecycle")
		logger.Warn().Err(err).Msg("timezone check")
		return
	}
	if change.ShouldRefresh {
		l.warm(ctx, domain.TriggerTimezone)
	}
}

func (l *Lifecycle) runMaintenance(ctx context.Context) {
	if _, err := l.Maintenance.Run(ctx); err != nil {
		logger := sysutil.Component("lifecycle")
		logger.Warn().Err(err).Msg("maintenance")
	}
}

func (l *Lifecycle) warmPeriodic(ctx context.Context) { l.warm(ctx, domain.TriggerPeriodic) }

func (l *Lifecycle) warm(ctx context.Context, trigger domain.WarmTrigger) {
	if _, err := l.Warming.Warm(ctx, trigger); err != nil {
		logger := sysutil.Component("lifecycle")
		logger.Warn().Err(err).Str("trigger", string(trigger)).Msg("warming")
	}
}
