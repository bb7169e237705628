package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/services"
)

func TestGetToday_LegacyServesTodayOnly(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusNotFound)
	wantCode(t, w, ErrCodeNoContent)
	if got := w.Header().Get(HeaderFeedPath); got != "legacy" {
		t.Fatalf("%s=%q want legacy", HeaderFeedPath, got)
	}

	wantStatus(t, s.do(t, http.MethodPut, "/content/today", record("c1", today)), http.StatusNoContent)

	w = s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[TodayResponse](t, w)
	if resp.Content == nil || resp.Content.ID != "c1" || resp.FallbackType != domain.FallbackNone || resp.Architecture != "legacy" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetToday_AllowStale(t *testing.T) {
	s := newStack(t)
	wantStatus(t, s.do(t, http.MethodPut, "/content/today", record("old", yesterday)), http.StatusNoContent)

	wantStatus(t, s.do(t, http.MethodGet, "/content/today", nil), http.StatusNotFound)

	w := s.do(t, http.MethodGet, "/content/today?allow_stale=true", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[TodayResponse](t, w)
	if resp.Content == nil || resp.Content.ID != "old" || !resp.IsStale {
		t.Fatalf("expected stale record, got %+v", resp)
	}
}

func TestGetToday_AllowStaleCarriesAgeWarning(t *testing.T) {
	s := newStack(t)
	old := record("old", today.AddDays(-5))
	old.CachedAt = t0.Add(-5 * 24 * time.Hour)
	wantStatus(t, s.do(t, http.MethodPut, "/content/today", old), http.StatusNoContent)

	w := s.do(t, http.MethodGet, "/content/today?allow_stale=true", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[TodayResponse](t, w)
	if resp.Content == nil || resp.Content.ID != "old" {
		t.Fatalf("expected stale record, got %+v", resp)
	}
	if !resp.IsStale || !resp.ShouldShowAgeWarning || resp.FallbackType != domain.FallbackNone {
		t.Fatalf("unexpected annotations: %+v", resp)
	}
	if want := int64((5 * 24 * time.Hour).Seconds()); resp.ContentAgeSeconds != want {
		t.Fatalf("content_age_seconds=%d want %d", resp.ContentAgeSeconds, want)
	}
}

func TestGetToday_FreshRecordHasNoWarning(t *testing.T) {
	s := newStack(t)
	rec := record("c1", today)
	rec.CachedAt = t0.Add(-time.Hour)
	wantStatus(t, s.do(t, http.MethodPut, "/content/today", rec), http.StatusNoContent)

	resp := decode[TodayResponse](t, s.do(t, http.MethodGet, "/content/today", nil))
	if resp.IsStale || resp.ShouldShowAgeWarning || resp.ContentAgeSeconds != 3600 {
		t.Fatalf("unexpected annotations: %+v", resp)
	}
}

func TestGetToday_NewPathReadsTodayOnce(t *testing.T) {
	s := newStack(t)
	if err := s.m.SetPhase(context.Background(), domain.PhaseFullDeployment); err != nil {
		t.Fatal(err)
	}
	wantStatus(t, s.do(t, http.MethodPut, "/content/today", record("old", yesterday)), http.StatusNoContent)
	wantStatus(t, s.do(t, http.MethodDelete, "/content/today", nil), http.StatusNoContent)

	misses := metrics.ContentLookups.WithLabelValues("miss")
	before := testutil.ToFloat64(misses)
	w := s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusOK)
	if got := testutil.ToFloat64(misses) - before; got != 1 {
		t.Fatalf("today misses recorded = %v; want 1", got)
	}
	if resp := decode[TodayResponse](t, w); resp.FallbackType != domain.FallbackPreviousDay {
		t.Fatalf("expected previous-day fallback, got %+v", resp)
	}
}

func TestGetToday_NewPathFallsBack(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if err := s.m.SetPhase(ctx, domain.PhaseFullDeployment); err != nil {
		t.Fatal(err)
	}

	// Nothing cached at all.
	w := s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusNotFound)
	if got := w.Header().Get(HeaderFeedPath); got != "new" {
		t.Fatalf("%s=%q want new", HeaderFeedPath, got)
	}

	// Yesterday's record archived into the previous-day slot.
	old := record("old", yesterday)
	old.CachedAt = t0.Add(-50 * time.Hour)
	wantStatus(t, s.do(t, http.MethodPut, "/content/today", old), http.StatusNoContent)
	wantStatus(t, s.do(t, http.MethodDelete, "/content/today", nil), http.StatusNoContent)

	w = s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[TodayResponse](t, w)
	if resp.FallbackType != domain.FallbackPreviousDay || resp.Content == nil || resp.Content.ID != "old" {
		t.Fatalf("expected previous-day fallback, got %+v", resp)
	}
	if resp.ContentAgeSeconds != int64((50*time.Hour).Seconds()) || !resp.ShouldShowAgeWarning || !resp.IsStale || resp.Architecture != "new" {
		t.Fatalf("unexpected annotations: %+v", resp)
	}
}

func TestGetToday_KillSwitchForcesLegacy(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if err := s.m.SetPhase(ctx, domain.PhaseFullDeployment); err != nil {
		t.Fatal(err)
	}
	if err := s.m.SetRollback(ctx, true); err != nil {
		t.Fatal(err)
	}
	w := s.do(t, http.MethodGet, "/content/today", nil)
	if got := w.Header().Get(HeaderFeedPath); got != "legacy" {
		t.Fatalf("rollback active but path=%q", got)
	}
}

func TestGetToday_GateUnavailableServesLegacy(t *testing.T) {
	s := newStack(t)
	s.h.Rollout = &services.MigrationManager{}

	w := s.do(t, http.MethodGet, "/content/today", nil)
	wantStatus(t, w, http.StatusNotFound)
	if got := w.Header().Get(HeaderFeedPath); got != "legacy" {
		t.Fatalf("path=%q want legacy", got)
	}
}

func TestPutToday_Validation(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodPut, "/content/today", "{not json")
	wantStatus(t, w, http.StatusBadRequest)
	wantCode(t, w, ErrCodeBadRequest)

	bad := record("c1", today)
	bad.ConfidenceScore = 1.5
	w = s.do(t, http.MethodPut, "/content/today", bad)
	wantStatus(t, w, http.StatusUnprocessableEntity)
	wantCode(t, w, ErrCodeInvalidContent)
}

func TestGetFallback(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodGet, "/content/fallback", nil)
	wantStatus(t, w, http.StatusOK)
	if resp := decode[TodayResponse](t, w); resp.FallbackType != domain.FallbackNone || resp.Content != nil {
		t.Fatalf("empty cache should resolve to none, got %+v", resp)
	}

	// History only: today's record is in history but not previous-day.
	wantStatus(t, s.do(t, http.MethodPut, "/content/today", record("c1", today)), http.StatusNoContent)
	w = s.do(t, http.MethodGet, "/content/fallback", nil)
	resp := decode[TodayResponse](t, w)
	if resp.FallbackType != domain.FallbackHistory || resp.Content.ID != "c1" {
		t.Fatalf("expected history fallback, got %+v", resp)
	}
}

func TestGetHistory_PaginationAndETag(t *testing.T) {
	s := newStack(t)
	for i, id := range []string{"d3", "d2", "d1"} {
		wantStatus(t, s.do(t, http.MethodPut, "/content/today", record(id, today.AddDays(-3+i))), http.StatusNoContent)
	}

	w := s.do(t, http.MethodGet, "/content/history?page=1&page_size=2", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[HistoryResponse](t, w)
	if len(resp.Items) != 2 || resp.Items[0].ID != "d1" || resp.Items[1].ID != "d2" {
		t.Fatalf("page 1 = %+v", resp.Items)
	}
	want := Pagination{Page: 1, PageSize: 2, Total: 3, TotalPages: 2, HasNext: true}
	if resp.Pagination != want {
		t.Fatalf("pagination=%+v want %+v", resp.Pagination, want)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	w = s.do(t, http.MethodGet, "/content/history", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusNotModified)

	wantStatus(t, s.do(t, http.MethodPut, "/content/today", record("d0", today)), http.StatusNoContent)
	w = s.do(t, http.MethodGet, "/content/history", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusOK)

	// Out-of-range page and clamped size.
	w = s.do(t, http.MethodGet, "/content/history?page=9&page_size=500", nil)
	resp = decode[HistoryResponse](t, w)
	if len(resp.Items) != 0 || resp.Pagination.PageSize != 50 || resp.Pagination.HasNext {
		t.Fatalf("page 9 = %+v", resp)
	}
}

func TestContent_NotInitialized(t *testing.T) {
	s := newStack(t)
	s.l.Dispose(context.Background())

	w := s.do(t, http.MethodGet, "/content/fallback", nil)
	wantStatus(t, w, http.StatusServiceUnavailable)
	wantCode(t, w, ErrCodeNotInitialized)
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}
