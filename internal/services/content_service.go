// Package services – ContentService
//
// ContentService owns the content partition: the single "today" record, the
// previous-day fallback slot, a bounded history keyed by calendar day, and the
// metadata written alongside today's record.
//
// Reads that hit storage or decoding errors are logged and treated as a cache
// miss: cached content can always be refetched. Writes consult the budget
// enforcer before and after touching the store so the aggregate cache stays
// under its byte ceiling.
//
// Observability: public methods are OpenTelemetry-instrumented and lookups
// are counted by result in the metrics package.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

// BudgetEnforcer keeps the store under its byte ceiling. incoming is the size
// of a write about to happen.
type BudgetEnforcer interface {
	EnforceBudget(ctx context.Context, incoming int64) (domain.EvictionReport, error)
}

// ContentService persists today's content and resolves the fallback chain.
type ContentService struct {
	DB       *gorm.DB
	Clock    clock.Clock
	Location *time.Location

	HistoryLimit        int
	AgeWarning          time.Duration
	StaleNoticeInterval time.Duration

	// Budget is optional; without it writes are not size-checked.
	Budget BudgetEnforcer

	initFlag

	// mu serializes read-modify-write of the content partition.
	mu sync.Mutex

	noticeMu sync.Mutex
	notice   *rate.Limiter
}

// Name implements Service.
func (s *ContentService) Name() string { return NameContent }

// Init implements Service.
func (s *ContentService) Init(ctx context.Context) error {
	if s.DB == nil || s.Clock == nil || s.Location == nil {
		return fmt.Errorf("%w: content service needs a store, a clock and a location", ErrInvalidConfig)
	}
	if s.HistoryLimit <= 0 {
		return fmt.Errorf("%w: history limit must be positive", ErrInvalidConfig)
	}
	every := s.StaleNoticeInterval
	if every <= 0 {
		every = time.Minute
	}
	s.noticeMu.Lock()
	s.notice = rate.NewLimiter(rate.Every(every), 1)
	s.noticeMu.Unlock()
	s.on.Store(true)
	return nil
}

// Dispose implements Service.
func (s *ContentService) Dispose(ctx context.Context) error {
	s.on.Store(false)
	return nil
}

// Today returns the local calendar day of the configured timezone.
func (s *ContentService) Today() civil.Date {
	return civil.DateOf(s.Clock.Now().In(s.Location))
}

// CacheToday stores rec as today's content. A record for a different day that
// is being replaced is demoted into the previous-day slot. A copy is
// prepended to history, which keeps one entry per calendar day, newest first,
// trimmed to HistoryLimit.
func (s *ContentService) CacheToday(ctx context.Context, rec domain.ContentRecord) error {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "CacheToday",
		trace.WithAttributes(
			attribute.String("content.id", rec.ID),
			attribute.String("content.date", rec.ContentDate.String()),
		),
	)
	defer span.End()

	if err := s.guard(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if rec.CachedAt.IsZero() {
		rec.CachedAt = s.Clock.Now().UTC()
	}
	rec.IsStale = false
	rec.FallbackType = ""

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	size := int64(len(raw))

	// Pre-check: make room for the incoming record.
	if err := s.enforce(ctx, size); err != nil {
		return err
	}

	s.mu.Lock()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := s.read(ctx, tx, domain.KeyContentToday)
		if err != nil {
			s.warnMiss(domain.KeyContentToday, err)
		}
		if prev != nil && prev.ContentDate != rec.ContentDate {
			if _, err := repo.PutJSON(ctx, tx, domain.KeyContentPreviousDay, stripAnnotations(*prev)); err != nil {
				return err
			}
		}
		if _, err := repo.PutValue(ctx, tx, domain.KeyContentToday, string(raw)); err != nil {
			return err
		}
		meta := domain.ContentMetadata{
			CachedAt:        rec.CachedAt,
			ContentDate:     rec.ContentDate,
			ConfidenceScore: rec.ConfidenceScore,
			SizeBytes:       size,
		}
		if _, err := repo.PutJSON(ctx, tx, domain.KeyContentMetadata, meta); err != nil {
			return err
		}
		hist := s.loadHistory(ctx, tx)
		hist = mergeHistory(hist, rec, s.HistoryLimit)
		_, err = repo.PutJSON(ctx, tx, domain.KeyContentHistory, hist)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// Post-check: the write itself may have pushed the store over.
	return s.enforce(ctx, 0)
}

// GetToday returns today's record when its content date is the current local
// day. With allowStale a record for another day is returned flagged stale.
// Otherwise (nil, nil) means there is no usable content.
func (s *ContentService) GetToday(ctx context.Context, allowStale bool) (*domain.ContentRecord, error) {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "GetToday",
		trace.WithAttributes(attribute.Bool("allow_stale", allowStale)),
	)
	defer span.End()

	if err := s.guard(); err != nil {
		return nil, err
	}
	rec, err := s.read(ctx, s.DB, domain.KeyContentToday)
	if err != nil {
		metrics.ContentLookups.WithLabelValues("error").Inc()
		s.warnMiss(domain.KeyContentToday, err)
		return nil, nil
	}
	if rec == nil {
		metrics.ContentLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if rec.IsForDay(s.Today()) {
		metrics.ContentLookups.WithLabelValues("hit").Inc()
		return rec, nil
	}
	if !allowStale {
		metrics.ContentLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	rec.IsStale = true
	metrics.ContentLookups.WithLabelValues("stale").Inc()
	s.staleNotice(rec)
	return rec, nil
}

// GetFallback resolves previous-day, then the newest history entry. A result
// with FallbackType none carries no content.
func (s *ContentService) GetFallback(ctx context.Context) (domain.FallbackResult, error) {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "GetFallback")
	defer span.End()

	if err := s.guard(); err != nil {
		return domain.FallbackResult{}, err
	}

	prev, err := s.read(ctx, s.DB, domain.KeyContentPreviousDay)
	if err != nil {
		s.warnMiss(domain.KeyContentPreviousDay, err)
	}
	if prev != nil {
		return s.fallback(prev, domain.FallbackPreviousDay), nil
	}

	if hist := s.loadHistory(ctx, s.DB); len(hist) > 0 {
		rec := hist[0]
		return s.fallback(&rec, domain.FallbackHistory), nil
	}

	metrics.FallbackResolutions.WithLabelValues(string(domain.FallbackNone)).Inc()
	return domain.FallbackResult{FallbackType: domain.FallbackNone}, nil
}

// Resolve walks the whole chain: fresh today content, then the fallbacks.
// ErrNoContent is returned when the chain is empty.
func (s *ContentService) Resolve(ctx context.Context) (domain.FallbackResult, error) {
	today, err := s.GetToday(ctx, false)
	if err != nil {
		return domain.FallbackResult{}, err
	}
	if today != nil {
		return s.Annotate(today), nil
	}
	res, err := s.GetFallback(ctx)
	if err != nil {
		return res, err
	}
	if res.Content == nil {
		return res, ErrNoContent
	}
	return res, nil
}

// Annotate wraps a record read from the today slot with its age and the age
// warning. A stale record keeps IsStale; FallbackType stays none.
func (s *ContentService) Annotate(rec *domain.ContentRecord) domain.FallbackResult {
	if rec == nil {
		return domain.FallbackResult{FallbackType: domain.FallbackNone}
	}
	age := s.age(rec)
	return domain.FallbackResult{
		Content:              rec,
		FallbackType:         domain.FallbackNone,
		ContentAge:           age,
		IsStale:              rec.IsStale,
		ShouldShowAgeWarning: s.AgeWarning > 0 && age > s.AgeWarning,
	}
}

// ClearTodayContent archives the current today record (stale or not) into
// the previous-day slot and deletes it together with its metadata. Clearing
// an empty slot leaves the previous-day slot untouched.
func (s *ContentService) ClearTodayContent(ctx context.Context) error {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "ClearTodayContent")
	defer span.End()

	if err := s.guard(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.read(ctx, tx, domain.KeyContentToday)
		if err != nil {
			s.warnMiss(domain.KeyContentToday, err)
		}
		if cur != nil {
			if _, err := repo.PutJSON(ctx, tx, domain.KeyContentPreviousDay, stripAnnotations(*cur)); err != nil {
				return err
			}
		}
		if err := repo.DeleteValue(ctx, tx, domain.KeyContentToday); err != nil {
			return err
		}
		return repo.DeleteValue(ctx, tx, domain.KeyContentMetadata)
	})
}

// History returns the cached history, newest first.
func (s *ContentService) History(ctx context.Context) ([]domain.ContentRecord, error) {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "History")
	defer span.End()

	if err := s.guard(); err != nil {
		return nil, err
	}
	return s.loadHistory(ctx, s.DB), nil
}

// Metadata returns the metadata of today's record, or nil when absent.
func (s *ContentService) Metadata(ctx context.Context) (*domain.ContentMetadata, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var meta domain.ContentMetadata
	if err := repo.GetJSON(ctx, s.DB, domain.KeyContentMetadata, &meta); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.warnMiss(domain.KeyContentMetadata, err)
		}
		return nil, nil
	}
	return &meta, nil
}

// LastRefresh is when today's record was last cached, or nil.
func (s *ContentService) LastRefresh(ctx context.Context) (*time.Time, error) {
	meta, err := s.Metadata(ctx)
	if err != nil || meta == nil {
		return nil, err
	}
	t := meta.CachedAt
	return &t, nil
}

// ContentSummary describes the content partition without counting as a lookup.
type ContentSummary struct {
	HasToday       bool
	TodayIsStale   bool
	HasPreviousDay bool
	HistoryLength  int
	LastRefresh    *time.Time
}

// Summary inspects the content partition for health reporting.
func (s *ContentService) Summary(ctx context.Context) (ContentSummary, error) {
	var sum ContentSummary
	if err := s.guard(); err != nil {
		return sum, err
	}
	if today, err := s.read(ctx, s.DB, domain.KeyContentToday); err == nil && today != nil {
		sum.HasToday = true
		sum.TodayIsStale = !today.IsForDay(s.Today())
	}
	if prev, err := s.read(ctx, s.DB, domain.KeyContentPreviousDay); err == nil && prev != nil {
		sum.HasPreviousDay = true
	}
	sum.HistoryLength = len(s.loadHistory(ctx, s.DB))
	sum.LastRefresh, _ = s.LastRefresh(ctx)
	return sum, nil
}

// EvictOldestHistory drops the oldest history entry. It reports false when
// history is already empty.
func (s *ContentService) EvictOldestHistory(ctx context.Context) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.loadHistory(ctx, s.DB)
	if len(hist) == 0 {
		return false, nil
	}
	hist = hist[:len(hist)-1]
	if len(hist) == 0 {
		return true, repo.DeleteValue(ctx, s.DB, domain.KeyContentHistory)
	}
	_, err := repo.PutJSON(ctx, s.DB, domain.KeyContentHistory, hist)
	return err == nil, err
}

// read decodes a record stored under key. A missing key is (nil, nil).
func (s *ContentService) read(ctx context.Context, db *gorm.DB, key string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	if err := repo.GetJSON(ctx, db, key, &rec); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *ContentService) loadHistory(ctx context.Context, db *gorm.DB) []domain.ContentRecord {
	var hist []domain.ContentRecord
	if err := repo.GetJSON(ctx, db, domain.KeyContentHistory, &hist); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.warnMiss(domain.KeyContentHistory, err)
		}
		return nil
	}
	return hist
}

func (s *ContentService) fallback(rec *domain.ContentRecord, typ domain.FallbackType) domain.FallbackResult {
	rec.FallbackType = typ
	rec.IsStale = !rec.IsForDay(s.Today())
	age := s.age(rec)
	metrics.FallbackResolutions.WithLabelValues(string(typ)).Inc()
	return domain.FallbackResult{
		Content:              rec,
		FallbackType:         typ,
		ContentAge:           age,
		IsStale:              rec.IsStale,
		ShouldShowAgeWarning: s.AgeWarning > 0 && age > s.AgeWarning,
	}
}

func (s *ContentService) age(rec *domain.ContentRecord) time.Duration {
	if rec.CachedAt.IsZero() {
		return 0
	}
	if d := s.Clock.Now().Sub(rec.CachedAt); d > 0 {
		return d
	}
	return 0
}

func (s *ContentService) enforce(ctx context.Context, incoming int64) error {
	if s.Budget == nil {
		return nil
	}
	_, err := s.Budget.EnforceBudget(ctx, incoming)
	return err
}

// staleNotice logs at most once per StaleNoticeInterval.
func (s *ContentService) staleNotice(rec *domain.ContentRecord) {
	s.noticeMu.Lock()
	allowed := s.notice != nil && s.notice.AllowN(s.Clock.Now(), 1)
	s.noticeMu.Unlock()
	if !allowed {
		return
	}
	metrics.StaleNotices.Inc()
	logger := sysutil.Component(NameContent)
	logger.Info().
		Str("content_id", rec.ID).
		Str("content_date", rec.ContentDate.String()).
		Str("today", s.Today().String()).
		Msg("serving stale content")
}

func (s *ContentService) warnMiss(key string, err error) {
	logger := sysutil.Component(NameContent)
	logger.Warn().Err(err).Str("key", key).Msg("content read failed; treating as miss")
}

// mergeHistory prepends rec, keeps one entry per day (the newest write wins)
// and trims to limit, newest day first.
func mergeHistory(hist []domain.ContentRecord, rec domain.ContentRecord, limit int) []domain.ContentRecord {
	out := make([]domain.ContentRecord, 0, len(hist)+1)
	out = append(out, stripAnnotations(rec))
	seen := map[civil.Date]bool{rec.ContentDate: true}
	for _, h := range hist {
		if seen[h.ContentDate] {
			continue
		}
		seen[h.ContentDate] = true
		out = append(out, stripAnnotations(h))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].ContentDate.Before(out[i].ContentDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func stripAnnotations(rec domain.ContentRecord) domain.ContentRecord {
	rec.IsStale = false
	rec.FallbackType = ""
	return rec
}
