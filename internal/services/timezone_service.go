// Package services – TimezoneMonitor
//
// TimezoneMonitor samples the configured timezone and diffs each sample
// against the last persisted snapshot. Two signals are observed: an
// identifier/offset change and a DST-flag flip. It also computes the next
// daily refresh instant, delaying it when a spring-forward transition lands
// right before it.
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
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

const (
	// offsetJumpThreshold always warrants a refresh.
	offsetJumpThreshold = 2 * time.Hour
	// refreshStaleAfter gates DST and identifier changes.
	refreshStaleAfter = 12 * time.Hour
	// transitionWindow is how far before the refresh instant an offset
	// increase is looked for.
	transitionWindow = time.Hour
)

// TimezoneMonitor detects timezone and DST transitions.
type TimezoneMonitor struct {
	DB          *gorm.DB
	Clock       clock.Clock
	Location    *time.Location
	RefreshHour int

	// LastRefresh reports when content was last refreshed; nil means never.
	LastRefresh func(ctx context.Context) (*time.Time, error)

	initFlag
	mu sync.Mutex
}

// Name implements Service.
func (m *TimezoneMonitor) Name() string { return NameTimezone }

// Init implements Service.
func (m *TimezoneMonitor) Init(ctx context.Context) error {
	if m.DB == nil || m.Clock == nil || m.Location == nil {
		return fmt.Errorf("%w: timezone monitor needs a store, a clock and a location", ErrInvalidConfig)
	}
	if m.RefreshHour < 0 || m.RefreshHour > 23 {
		return fmt.Errorf("%w: refresh hour %d out of range", ErrInvalidConfig, m.RefreshHour)
	}
	m.on.Store(true)
	return nil
}

// Dispose implements Service.
func (m *TimezoneMonitor) Dispose(ctx context.Context) error {
	m.on.Store(false)
	return nil
}

// Sample observes the configured timezone at now.
func (m *TimezoneMonitor) Sample(now time.Time) domain.TimezoneSnapshot {
	local := now.In(m.Location)
	_, off := local.Zone()
	return domain.TimezoneSnapshot{
		Identifier:       m.Location.String(),
		UTCOffsetMinutes: off / 60,
		IsDST:            local.IsDST(),
		ObservedAt:       now.UTC(),
	}
}

// Detect samples the timezone, diffs it against the persisted snapshot and
// persists the new sample. The first sample ever reports no change.
func (m *TimezoneMonitor) Detect(ctx context.Context) (domain.TimezoneChange, error) {
	tr := otel.Tracer("services/TimezoneMonitor")
	ctx, span := tr.Start(ctx, "Detect",
		trace.WithAttributes(attribute.String("timezone", m.Location.String())),
	)
	defer span.End()

	if err := m.guard(); err != nil {
		return domain.TimezoneChange{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock.Now()
	cur := m.Sample(now)
	change := domain.TimezoneChange{Current: cur}

	var prev domain.TimezoneSnapshot
	err := repo.GetJSON(ctx, m.DB, domain.KeyTimezoneSnapshot, &prev)
	switch {
	case err == nil:
		change.Previous = &prev
		change.IdentifierChanged = prev.Identifier != cur.Identifier
		change.OffsetChanged = prev.UTCOffsetMinutes != cur.UTCOffsetMinutes
		change.DSTChanged = prev.IsDST != cur.IsDST
		change.OffsetDelta = time.Duration(cur.UTCOffsetMinutes-prev.UTCOffsetMinutes) * time.Minute
	case !errors.Is(err, repo.ErrNotFound):
		logger := sysutil.Component(NameTimezone)
		logger.Warn().Err(err).Msg("timezone snapshot unreadable; treating as first sample")
	}

	if _, err := repo.PutJSON(ctx, m.DB, domain.KeyTimezoneSnapshot, cur); err != nil {
		return change, err
	}
	if !change.Changed() {
		return change, nil
	}

	if change.IdentifierChanged {
		metrics.TimezoneChanges.WithLabelValues("identifier").Inc()
	}
	if change.OffsetChanged {
		metrics.TimezoneChanges.WithLabelValues("offset").Inc()
	}
	if change.DSTChanged {
		metrics.TimezoneChanges.WithLabelValues("dst").Inc()
	}

	var last *time.Time
	if m.LastRefresh != nil {
		if last, err = m.LastRefresh(ctx); err != nil {
			last = nil
		}
	}
	change.ShouldRefresh = ShouldRefresh(change, last, now)

	span.SetAttributes(
		attribute.Bool("identifier_changed", change.IdentifierChanged),
		attribute.Bool("dst_changed", change.DSTChanged),
		attribute.Int64("offset_delta_minutes", int64(change.OffsetDelta/time.Minute)),
		attribute.Bool("should_refresh", change.ShouldRefresh),
	)
	logger := sysutil.Component(NameTimezone)
	logger.Info().
		Str("from", prev.Identifier).
		Str("to", cur.Identifier).
		Dur("offset_delta", change.OffsetDelta).
		Bool("dst_changed", change.DSTChanged).
		Bool("should_refresh", change.ShouldRefresh).
		Msg("timezone change detected")
	return change, nil
}

// ShouldRefresh decides whether a detected change warrants a content
// refresh. An offset jump above two hours always does. Smaller offset
// changes, DST flips and identifier changes only do when the last refresh is
// more than twelve hours old (or unknown).
func ShouldRefresh(change domain.TimezoneChange, lastRefresh *time.Time, now time.Time) bool {
	if !change.Changed() {
		return false
	}
	delta := change.OffsetDelta
	if delta < 0 {
		delta = -delta
	}
	if delta > offsetJumpThreshold {
		return true
	}
	if lastRefresh == nil {
		return true
	}
	return now.Sub(*lastRefresh) > refreshStaleAfter
}

// NextRefreshInstant returns the next local RefreshHour:00 strictly after
// now. When the UTC offset increased during the hour before that instant
// (spring forward) the instant is delayed by the offset delta. A fall-back
// transition leaves it unchanged.
func (m *TimezoneMonitor) NextRefreshInstant(now time.Time) (time.Time, error) {
	if m.Location == nil {
		return time.Time{}, fmt.Errorf("%w: no timezone", ErrInvalidConfig)
	}
	if m.RefreshHour < 0 || m.RefreshHour > 23 {
		return time.Time{}, fmt.Errorf("%w: refresh hour %d out of range", ErrInvalidConfig, m.RefreshHour)
	}

	local := now.In(m.Location)
	y, mo, d := local.Date()
	next := time.Date(y, mo, d, m.RefreshHour, 0, 0, 0, m.Location)
	if !next.After(now) {
		next = time.Date(y, mo, d+1, m.RefreshHour, 0, 0, 0, m.Location)
	}

	_, before := next.Add(-transitionWindow).Zone()
	_, at := next.Zone()
	if delta := time.Duration(at-before) * time.Second; delta > 0 {
		next = next.Add(delta)
	}
	return next, nil
}
