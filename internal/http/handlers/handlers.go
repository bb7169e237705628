// Package handlers wires HTTP endpoints to the cache services.
//
// Handlers depend on the narrow interfaces below rather than on concrete
// services; router.go supplies the real ones and tests may supply fakes.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/services"
)

// ContentService reads and writes the cached content.
type ContentService interface {
	GetToday(ctx context.Context, allowStale bool) (*domain.ContentRecord, error)
	Annotate(rec *domain.ContentRecord) domain.FallbackResult
	GetFallback(ctx context.Context) (domain.FallbackResult, error)
	CacheToday(ctx context.Context, rec domain.ContentRecord) error
	ClearTodayContent(ctx context.Context) error
	History(ctx context.Context) ([]domain.ContentRecord, error)
}

// SyncService queues interactions for upload.
type SyncService interface {
	Enqueue(ctx context.Context, action string, payload json.RawMessage) (domain.PendingInteraction, error)
	Drain(ctx context.Context) (services.DrainResult, error)
	Status(ctx context.Context) (domain.SyncStatus, error)
	Pending(ctx context.Context) ([]domain.PendingInteraction, error)
}

// RolloutService is the migration gate and its administrative setters.
type RolloutService interface {
	State() (domain.MigrationState, error)
	Decide(ctx context.Context, user domain.UserContext) (domain.RolloutDecision, error)
	SetPhase(ctx context.Context, p domain.Phase) error
	SetStrategy(ctx context.Context, s domain.RolloutStrategy) error
	SetPercentage(ctx context.Context, pct int) error
	SetRollback(ctx context.Context, on bool) error
	SetForceCompatibility(ctx context.Context, on bool) error
}

// LifecycleService exposes the parts of the lifecycle manager the API drives.
type LifecycleService interface {
	OnConnectivityChange(ctx context.Context, online bool) error
	State() services.LifecycleState
}

// MaintenanceService runs the maintenance pass on demand.
type MaintenanceService interface {
	Run(ctx context.Context) (domain.EvictionReport, error)
}

// WarmingService runs warming passes and reports their statistics.
type WarmingService interface {
	Warm(ctx context.Context, trigger domain.WarmTrigger) (domain.WarmResult, error)
	Stats(ctx context.Context) (domain.WarmingStats, error)
}

// HealthService measures the cache.
type HealthService interface {
	Snapshot(ctx context.Context) (domain.HealthReport, error)
}

// Deps groups everything the handlers need.
type Deps struct {
	Content     ContentService
	Sync        SyncService
	Rollout     RolloutService
	Lifecycle   LifecycleService
	Maintenance MaintenanceService
	Warming     WarmingService
	Health      HealthService

	// DB backs ETags and idempotency records.
	DB             *gorm.DB
	IdempotencyTTL time.Duration
	// IsInternal marks internal users for the rollout gate.
	IsInternal func(userID string) bool
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	Deps
}

// New constructs Handlers over d.
func New(d Deps) *Handlers {
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{Deps: d}
}
