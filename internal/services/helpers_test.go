package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/config"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/repo"

	_ "time/tzdata"
)

// ---------- test helpers ----------

var (
	dec28 = civil.Date{Year: 2024, Month: time.December, Day: 28}
	t0    = time.Date(2024, time.December, 28, 10, 0, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

// testConfig returns a valid configuration with spec defaults in UTC.
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
		RateRPS:           10,
		RateBurst:         20,
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
		Rollout: config.RolloutConfig{Environment: "production", Salt: "test-salt"},
		Remote:  config.RemoteConfig{Timeout: time.Second, Probe: time.Second},
		OTEL:    config.OTELConfig{SampleRatio: 1},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
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

func newContent(t *testing.T, db *gorm.DB, clk clock.Clock) *ContentService {
	t.Helper()
	s := &ContentService{
		DB:                  db,
		Clock:               clk,
		Location:            time.UTC,
		HistoryLimit:        7,
		AgeWarning:          48 * time.Hour,
		StaleNoticeInterval: time.Minute,
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("content init: %v", err)
	}
	return s
}

// fakeRemote is a scriptable Syncer and Fetcher.
type fakeRemote struct {
	mu         sync.Mutex
	syncCalls  int
	fetchCalls int
	batches    [][]domain.PendingInteraction
	syncErr    error
	fetchErr   error
	clk        clock.Clock

	// entered/release let a test hold SyncBatch in flight.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeRemote) SyncBatch(ctx context.Context, items []domain.PendingInteraction) error {
	f.mu.Lock()
	f.syncCalls++
	f.batches = append(f.batches, append([]domain.PendingInteraction(nil), items...))
	err := f.syncErr
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeRemote) FetchToday(ctx context.Context) (domain.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return domain.ContentRecord{}, f.fetchErr
	}
	day := civil.DateOf(time.Now())
	if f.clk != nil {
		day = civil.DateOf(f.clk.Now().UTC())
	}
	return record(fmt.Sprintf("remote-%d", f.fetchCalls), day), nil
}

func (f *fakeRemote) calls() (syncs, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncCalls, f.fetchCalls
}

var errBoom = errors.New("boom")
