package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/config"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/http/middleware"
	"github.com/tbourn/today-feed-cache/internal/remote"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

var (
	t0        = time.Date(2024, time.December, 28, 10, 0, 0, 0, time.UTC)
	today     = civil.Date{Year: 2024, Month: time.December, Day: 28}
	yesterday = today.AddDays(-1)
)

// stack is a fully wired cache behind a gin engine.
type stack struct {
	r   *gin.Engine
	h   *Handlers
	clk *clock.Fake
	l   *services.Lifecycle
	m   *services.MigrationManager
	sim *remote.Simulated
	db  *gorm.DB
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{
		Port:              "8080",
		ReadTimeout:       time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       time.Second,
		MaxHeaderBytes:    1 << 20,
		GinMode:           "test",
		LogLevel:          "error",
		APIBasePath:       "/api/v1",
		DBPath:            "unused.db",
		RateRPS:           100,
		RateBurst:         100,
		IdempotencyTTL:    time.Hour,
		Cache: config.CacheConfig{
			MaxBytes:              10 << 20,
			HistoryLimit:          7,
			SchemaVersion:         2,
			Timezone:              "UTC",
			RefreshHour:           3,
			AgeWarning:            48 * time.Hour,
			StaleNoticeInterval:   time.Minute,
			TimezoneCheckInterval: 2 * time.Hour,
			MaintenanceInterval:   6 * time.Hour,
		},
		Sync: config.SyncConfig{
			QueueLimit:     50,
			ErrorLimit:     50,
			MaxRetries:     3,
			BaseDelay:      2 * time.Second,
			ItemRetryLimit: 10,
			Retention:      7 * 24 * time.Hour,
		},
		Warming: config.WarmingConfig{
			Enabled:        true,
			OnConnectivity: true,
			Interval:       time.Hour,
			WindowStart:    2,
			WindowEnd:      6,
			MinAge:         6 * time.Hour,
		},
		Rollout: config.RolloutConfig{
			Environment:   "production",
			Salt:          "test-salt",
			InternalUsers: []string{"staff1"},
		},
		Remote: config.RemoteConfig{Timeout: time.Second, Probe: time.Second},
		OTEL:   config.OTELConfig{SampleRatio: 1},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

// newStack initializes the lifecycle and the rollout gate over a temp store
// and mounts every handler the way the router does, minus the cross-cutting
// middleware that has its own tests.
func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), repo.Options{Quiet: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clk := clock.NewFake(t0)
	sim := remote.NewSimulated(clk, cfg.Cache.Location)
	l := &services.Lifecycle{Config: cfg, Clock: clk, DB: db, Fetcher: sim, Syncer: sim}
	if err := l.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { l.Dispose(context.Background()) })

	m := &services.MigrationManager{DB: db, Config: cfg.Rollout}
	if err := m.Init(ctx); err != nil {
		t.Fatalf("rollout init: %v", err)
	}

	h := New(Deps{
		Content:     l.Content,
		Sync:        l.Sync,
		Rollout:     m,
		Lifecycle:   l,
		Maintenance: l.Maintenance,
		Warming:     l.Warming,
		Health:      l.Health,
		DB:          db,
		IsInternal:  cfg.Rollout.IsInternalUser,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity())
	r.GET("/content/today", h.GetToday)
	r.PUT("/content/today", h.PutToday)
	r.DELETE("/content/today", h.ClearToday)
	r.GET("/content/fallback", h.GetFallback)
	r.GET("/content/history", h.GetHistory)
	r.POST("/interactions", h.PostInteraction)
	r.POST("/sync/drain", h.DrainSync)
	r.GET("/sync/status", h.SyncStatus)
	r.POST("/connectivity", h.Connectivity)
	r.GET("/rollout/decision", h.GetDecision)
	r.GET("/admin/rollout", h.GetRollout)
	r.PUT("/admin/rollout/phase", h.SetPhase)
	r.PUT("/admin/rollout/strategy", h.SetStrategy)
	r.PUT("/admin/rollout/percentage", h.SetPercentage)
	r.PUT("/admin/rollout/rollback", h.SetRollback)
	r.PUT("/admin/rollout/force-compatibility", h.SetForceCompatibility)
	r.POST("/admin/maintenance", h.RunMaintenance)
	r.POST("/admin/warm", h.Warm)
	r.GET("/admin/health", h.GetHealth)

	return &stack{r: r, h: h, clk: clk, l: l, m: m, sim: sim, db: db}
}

// do sends a request; body may be nil, a string, or a value to marshal.
func (s *stack) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v; body=%s", v, err, w.Body.String())
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status=%d want %d; body=%s", w.Code, code, w.Body.String())
	}
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, code string) {
	t.Helper()
	if got := decode[ErrorResponse](t, w).Code; got != code {
		t.Fatalf("error code=%q want %q", got, code)
	}
}

func record(id string, d civil.Date) domain.ContentRecord {
	return domain.ContentRecord{
		ID:              id,
		ContentDate:     d,
		Title:           "Title " + id,
		Summary:         "Summary for " + id,
		Topic:           domain.TopicSleep,
		ConfidenceScore: 0.85,
	}
}
