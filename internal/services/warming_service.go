// Package services – WarmingCoordinator
//
// WarmingCoordinator decides whether to fetch content ahead of need and, when
// it does, caches the fetched record as today's content. Decisions use the
// static warming flags and a time-of-day window; every attempt is recorded in
// the persisted warming statistics.
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

// Fetcher retrieves today's content from the remote API.
type Fetcher interface {
	FetchToday(ctx context.Context) (domain.ContentRecord, error)
}

// Warming decision reasons.
const (
	reasonDisabled     = "warming disabled"
	reasonConnectivity = "connectivity warming disabled"
	reasonManual       = "manual trigger"
	reasonNoContent    = "no fresh content for today"
	reasonWindow       = "inside warming window and content aged"
	reasonFresh        = "content is fresh"
)

// WarmingCoordinator pre-fetches content.
type WarmingCoordinator struct {
	DB       *gorm.DB
	Clock    clock.Clock
	Location *time.Location
	Config   config.WarmingConfig

	Content *ContentService
	Fetcher Fetcher

	initFlag
	// mu makes warming passes sequential.
	mu sync.Mutex
}

// Name implements Service.
func (w *WarmingCoordinator) Name() string { return NameWarming }

// Init implements Service.
func (w *WarmingCoordinator) Init(ctx context.Context) error {
	if w.DB == nil || w.Clock == nil || w.Location == nil || w.Content == nil || w.Fetcher == nil {
		return fmt.Errorf("%w: warming needs a store, a clock, a location, content and a fetcher", ErrInvalidConfig)
	}
	if w.Config.WindowStart < 0 || w.Config.WindowStart > 23 || w.Config.WindowEnd < 0 || w.Config.WindowEnd > 24 {
		return fmt.Errorf("%w: warming window %d-%d out of range", ErrInvalidConfig, w.Config.WindowStart, w.Config.WindowEnd)
	}
	w.on.Store(true)
	return nil
}

// Dispose implements Service.
func (w *WarmingCoordinator) Dispose(ctx context.Context) error {
	w.on.Store(false)
	return nil
}

// ShouldWarm decides whether a pass for trigger should fetch.
func (w *WarmingCoordinator) ShouldWarm(ctx context.Context, trigger domain.WarmTrigger) (bool, string, error) {
	if err := w.guard(); err != nil {
		return false, "", err
	}
	if !w.Config.Enabled {
		return false, reasonDisabled, nil
	}
	if trigger == domain.TriggerConnectivity && !w.Config.OnConnectivity {
		return false, reasonConnectivity, nil
	}
	if trigger == domain.TriggerManual {
		return true, reasonManual, nil
	}

	today, err := w.Content.GetToday(ctx, false)
	if err != nil {
		return false, "", err
	}
	if today == nil {
		return true, reasonNoContent, nil
	}
	now := w.Clock.Now()
	if w.inWindow(now) && now.Sub(today.CachedAt) > w.Config.MinAge {
		return true, reasonWindow, nil
	}
	return false, reasonFresh, nil
}

// Warm runs one warming pass.
func (w *WarmingCoordinator) Warm(ctx context.Context, trigger domain.WarmTrigger) (domain.WarmResult, error) {
	tr := otel.Tracer("services/WarmingCoordinator")
	ctx, span := tr.Start(ctx, "Warm",
		trace.WithAttributes(attribute.String("trigger", string(trigger))),
	)
	defer span.End()

	res := domain.WarmResult{Trigger: trigger}
	if err := w.guard(); err != nil {
		return res, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.loadStats(ctx)
	stats.Attempts++
	stats.LastTrigger = trigger
	stats.LastRun = w.Clock.Now().UTC()

	ok, reason, err := w.ShouldWarm(ctx, trigger)
	if err != nil {
		return res, err
	}
	res.Reason = reason
	if !ok {
		stats.Skipped++
		w.saveStats(ctx, stats)
		metrics.WarmingRuns.WithLabelValues(string(trigger), "skipped").Inc()
		return res, nil
	}

	rec, err := w.Fetcher.FetchToday(ctx)
	if err == nil {
		rec.IsFromNetwork = true
		rec.CachedAt = time.Time{}
		err = w.Content.CacheToday(ctx, rec)
	}
	if err != nil {
		stats.Failures++
		stats.LastError = err.Error()
		w.saveStats(ctx, stats)
		metrics.WarmingRuns.WithLabelValues(string(trigger), "failure").Inc()
		logger := sysutil.Component(NameWarming)
		logger.Warn().Err(err).Str("trigger", string(trigger)).Msg("warming failed")
		return res, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	stats.Successes++
	stats.LastError = ""
	w.saveStats(ctx, stats)
	metrics.WarmingRuns.WithLabelValues(string(trigger), "success").Inc()
	res.Warmed = true
	logger := sysutil.Component(NameWarming)
	logger.Info().
		Str("trigger", string(trigger)).
		Str("content_id", rec.ID).
		Str("reason", reason).
		Msg("cache warmed")
	return res, nil
}

// Stats returns the persisted warming statistics.
func (w *WarmingCoordinator) Stats(ctx context.Context) (domain.WarmingStats, error) {
	if err := w.guard(); err != nil {
		return domain.WarmingStats{}, err
	}
	return w.loadStats(ctx), nil
}

// inWindow reports whether now falls in [WindowStart, WindowEnd) local
// hours. A window whose end precedes its start wraps midnight.
func (w *WarmingCoordinator) inWindow(now time.Time) bool {
	h := now.In(w.Location).Hour()
	s, e := w.Config.WindowStart, w.Config.WindowEnd
	if s == e {
		return false
	}
	if s < e {
		return h >= s && h < e
	}
	return h >= s || h < e
}

func (w *WarmingCoordinator) loadStats(ctx context.Context) domain.WarmingStats {
	var st domain.WarmingStats
	if err := repo.GetJSON(ctx, w.DB, domain.KeyWarmingStats, &st); err != nil && !errors.Is(err, repo.ErrNotFound) {
		logger := sysutil.Component(NameWarming)
		logger.Warn().Err(err).Msg("warming stats unreadable; starting over")
		return domain.WarmingStats{}
	}
	return st
}

func (w *WarmingCoordinator) saveStats(ctx context.Context, st domain.WarmingStats) {
	if _, err := repo.PutJSON(ctx, w.DB, domain.KeyWarmingStats, st); err != nil {
		logger := sysutil.Component(NameWarming)
		logger.Warn().Err(err).Msg("could not persist warming stats")
	}
}
