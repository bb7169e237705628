package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
)

func TestContent_NotInitialized(t *testing.T) {
	s := &ContentService{}
	ctx := context.Background()
	if err := s.CacheToday(ctx, record("a", dec28)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("CacheToday err = %v; want ErrNotInitialized", err)
	}
	if _, err := s.GetToday(ctx, true); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("GetToday err = %v; want ErrNotInitialized", err)
	}
	if _, err := s.GetFallback(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("GetFallback err = %v; want ErrNotInitialized", err)
	}
	if err := s.ClearTodayContent(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("ClearTodayContent err = %v; want ErrNotInitialized", err)
	}
}

func TestContent_CacheTodayRejectsInvalid(t *testing.T) {
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	bad := record("a", dec28)
	bad.ConfidenceScore = 1.5
	if err := s.CacheToday(context.Background(), bad); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("err = %v; want ErrInvalidContent", err)
	}
}

// 2024-12-28 example: fresh on the day, missing the next day unless stale
// content is allowed, in which case the same record comes back flagged.
func TestContent_TodayFreshnessByCalendarDay(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatalf("CacheToday: %v", err)
	}

	got, err := s.GetToday(ctx, false)
	if err != nil || got == nil {
		t.Fatalf("GetToday same day = %v, %v", got, err)
	}
	if got.ID != "dec28" || got.ConfidenceScore != 0.85 || got.IsStale {
		t.Fatalf("unexpected record: %+v", got)
	}

	clk.Set(time.Date(2024, time.December, 29, 9, 0, 0, 0, time.UTC))
	if got, _ := s.GetToday(ctx, false); got != nil {
		t.Fatalf("GetToday(false) next day = %+v; want nil", got)
	}
	got, _ = s.GetToday(ctx, true)
	if got == nil || got.ID != "dec28" || !got.IsStale {
		t.Fatalf("GetToday(true) next day = %+v; want stale dec28", got)
	}
}

func TestContent_TodayRespectsConfiguredLocation(t *testing.T) {
	ctx := context.Background()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	// 2024-12-28 20:00 UTC is already 2024-12-29 in Tokyo.
	clk := clock.NewFake(time.Date(2024, time.December, 28, 20, 0, 0, 0, time.UTC))
	s := newContent(t, newTestDB(t), clk)
	s.Location = tokyo

	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetToday(ctx, false); got != nil {
		t.Fatalf("dec28 content should be stale in Tokyo, got %+v", got)
	}
	if err := s.CacheToday(ctx, record("dec29", dec28.AddDays(1))); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetToday(ctx, false); got == nil || got.ID != "dec29" {
		t.Fatalf("GetToday = %+v; want dec29", got)
	}
}

func TestContent_HistoryBoundedNewestFirst(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	start := civil.Date{Year: 2024, Month: time.December, Day: 1}
	for i := 0; i < 8; i++ {
		if err := s.CacheToday(ctx, record(start.AddDays(i).String(), start.AddDays(i))); err != nil {
			t.Fatalf("CacheToday #%d: %v", i+1, err)
		}
		hist, _ := s.History(ctx)
		if len(hist) > 7 {
			t.Fatalf("history grew to %d", len(hist))
		}
	}

	hist, err := s.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, h := range hist {
		got = append(got, h.ID)
	}
	want := []string{
		"2024-12-08", "2024-12-07", "2024-12-06", "2024-12-05",
		"2024-12-04", "2024-12-03", "2024-12-02",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestContent_HistoryOneEntryPerDay(t *testing.T) {
	ctx := context.Background()
	s := newContent(t, newTestDB(t), clock.NewFake(t0))

	first := record("first", dec28)
	second := record("second", dec28)
	second.Title = "Updated"
	for _, r := range []domain.ContentRecord{first, second} {
		if err := s.CacheToday(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	hist, _ := s.History(ctx)
	if len(hist) != 1 || hist[0].ID != "second" {
		t.Fatalf("history = %+v; want only the newest write for the day", hist)
	}
	// Same-day replacement does not demote into previous-day.
	if _, err := repo.GetValue(ctx, s.DB, domain.KeyContentPreviousDay); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("previous-day slot written on same-day replace: %v", err)
	}
}

func TestContent_SupersedeDemotesToPreviousDay(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	clk.Advance(24 * time.Hour)
	if err := s.CacheToday(ctx, record("dec29", dec28.AddDays(1))); err != nil {
		t.Fatal(err)
	}

	fb, err := s.GetFallback(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fb.FallbackType != domain.FallbackPreviousDay || fb.Content == nil || fb.Content.ID != "dec28" {
		t.Fatalf("fallback = %+v; want previous_day dec28", fb)
	}
	if !fb.IsStale || fb.ContentAge != 24*time.Hour || fb.ShouldShowAgeWarning {
		t.Fatalf("fallback annotations = %+v", fb)
	}
}

func TestContent_FallbackChain(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	fb, err := s.GetFallback(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fb.FallbackType != domain.FallbackNone || fb.Content != nil {
		t.Fatalf("empty store fallback = %+v", fb)
	}
	if _, err := s.Resolve(ctx); !errors.Is(err, ErrNoContent) {
		t.Fatalf("Resolve on empty store err = %v; want ErrNoContent", err)
	}

	// Only history left: today cleared and previous-day removed.
	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteValue(ctx, s.DB, domain.KeyContentToday); err != nil {
		t.Fatal(err)
	}
	clk.Advance(72 * time.Hour)

	fb, err = s.GetFallback(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fb.FallbackType != domain.FallbackHistory || fb.Content.ID != "dec28" {
		t.Fatalf("fallback = %+v; want history dec28", fb)
	}
	if !fb.ShouldShowAgeWarning || fb.ContentAge != 72*time.Hour {
		t.Fatalf("expected age warning for 72h old content, got %+v", fb)
	}

	res, err := s.Resolve(ctx)
	if err != nil || res.FallbackType != domain.FallbackHistory {
		t.Fatalf("Resolve = %+v, %v", res, err)
	}
}

func TestContent_ResolvePrefersFreshToday(t *testing.T) {
	ctx := context.Background()
	s := newContent(t, newTestDB(t), clock.NewFake(t0))
	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	res, err := s.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.FallbackType != domain.FallbackNone || res.Content == nil || res.Content.ID != "dec28" || res.IsStale {
		t.Fatalf("Resolve = %+v; want fresh today", res)
	}
}

func TestContent_AnnotateStaleToday(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)
	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * 24 * time.Hour)

	rec, err := s.GetToday(ctx, true)
	if err != nil || rec == nil {
		t.Fatalf("GetToday stale = %v, %v", rec, err)
	}
	res := s.Annotate(rec)
	if res.FallbackType != domain.FallbackNone || !res.IsStale || !res.ShouldShowAgeWarning {
		t.Fatalf("Annotate = %+v; want stale with warning", res)
	}
	if res.ContentAge != 5*24*time.Hour {
		t.Fatalf("age = %s; want 120h", res.ContentAge)
	}
	if got := s.Annotate(nil); got.Content != nil || got.FallbackType != domain.FallbackNone {
		t.Fatalf("Annotate(nil) = %+v", got)
	}
}

func TestContent_ClearTwiceKeepsPreviousDay(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	// Archive works for stale records too.
	clk.Advance(48 * time.Hour)

	for i := 0; i < 2; i++ {
		if err := s.ClearTodayContent(ctx); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
	}

	if got, _ := s.GetToday(ctx, true); got != nil {
		t.Fatalf("today still present after clear: %+v", got)
	}
	if meta, _ := s.Metadata(ctx); meta != nil {
		t.Fatalf("metadata still present after clear: %+v", meta)
	}
	fb, err := s.GetFallback(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fb.FallbackType != domain.FallbackPreviousDay || fb.Content.ID != "dec28" {
		t.Fatalf("fallback after double clear = %+v", fb)
	}
}

func TestContent_MetadataAndLastRefresh(t *testing.T) {
	ctx := context.Background()
	s := newContent(t, newTestDB(t), clock.NewFake(t0))

	if last, _ := s.LastRefresh(ctx); last != nil {
		t.Fatalf("LastRefresh on empty store = %v", last)
	}
	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatal(err)
	}
	meta, err := s.Metadata(ctx)
	if err != nil || meta == nil {
		t.Fatalf("Metadata = %v, %v", meta, err)
	}
	if !meta.CachedAt.Equal(t0) || meta.ContentDate != dec28 || meta.ConfidenceScore != 0.85 || meta.SizeBytes <= 0 {
		t.Fatalf("metadata = %+v", meta)
	}
	last, _ := s.LastRefresh(ctx)
	if last == nil || !last.Equal(t0) {
		t.Fatalf("LastRefresh = %v; want %v", last, t0)
	}
}

func TestContent_CorruptTodayIsMiss(t *testing.T) {
	ctx := context.Background()
	s := newContent(t, newTestDB(t), clock.NewFake(t0))

	if _, err := repo.PutValue(ctx, s.DB, domain.KeyContentToday, "{not json"); err != nil {
		t.Fatal(err)
	}
	before := testutil.ToFloat64(metrics.ContentLookups.WithLabelValues("error"))
	got, err := s.GetToday(ctx, true)
	if err != nil || got != nil {
		t.Fatalf("GetToday on corrupt value = %+v, %v; want nil, nil", got, err)
	}
	if after := testutil.ToFloat64(metrics.ContentLookups.WithLabelValues("error")); after != before+1 {
		t.Fatalf("error lookups = %v; want %v", after, before+1)
	}
	// A corrupt slot does not block caching.
	if err := s.CacheToday(ctx, record("dec28", dec28)); err != nil {
		t.Fatalf("CacheToday over corrupt value: %v", err)
	}
}

func TestContent_StaleNoticeRateLimited(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	s := newContent(t, newTestDB(t), clk)

	if err := s.CacheToday(ctx, record("dec27", dec28.AddDays(-1))); err != nil {
		t.Fatal(err)
	}
	base := testutil.ToFloat64(metrics.StaleNotices)

	for i := 0; i < 5; i++ {
		if got, _ := s.GetToday(ctx, true); got == nil || !got.IsStale {
			t.Fatalf("expected stale record, got %+v", got)
		}
		clk.Advance(10 * time.Second)
	}
	if got := testutil.ToFloat64(metrics.StaleNotices) - base; got != 1 {
		t.Fatalf("notices within a minute = %v; want 1", got)
	}

	clk.Advance(time.Minute)
	_, _ = s.GetToday(ctx, true)
	if got := testutil.ToFloat64(metrics.StaleNotices) - base; got != 2 {
		t.Fatalf("notices after interval = %v; want 2", got)
	}
}

func TestContent_EvictOldestHistory(t *testing.T) {
	ctx := context.Background()
	s := newContent(t, newTestDB(t), clock.NewFake(t0))

	if ok, err := s.EvictOldestHistory(ctx); ok || err != nil {
		t.Fatalf("evict on empty = %v, %v", ok, err)
	}
	for i := 0; i < 2; i++ {
		if err := s.CacheToday(ctx, record(dec28.AddDays(i).String(), dec28.AddDays(i))); err != nil {
			t.Fatal(err)
		}
	}
	if ok, err := s.EvictOldestHistory(ctx); !ok || err != nil {
		t.Fatalf("evict = %v, %v", ok, err)
	}
	hist, _ := s.History(ctx)
	if len(hist) != 1 || hist[0].ContentDate != dec28.AddDays(1) {
		t.Fatalf("history after evict = %+v", hist)
	}
	if ok, _ := s.EvictOldestHistory(ctx); !ok {
		t.Fatal("expected last entry to be evicted")
	}
	if _, err := repo.GetValue(ctx, s.DB, domain.KeyContentHistory); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("history key should be gone, err = %v", err)
	}
}
