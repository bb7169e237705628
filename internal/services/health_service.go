package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/metrics"
	"github.com/tbourn/today-feed-cache/internal/repo"
)

// reportedPartitions is the order partitions appear in a HealthReport.
var reportedPartitions = []string{
	domain.PartitionContent,
	domain.PartitionSync,
	domain.PartitionTimezone,
	domain.PartitionWarming,
	domain.PartitionMigration,
	domain.PartitionCache,
}

// HealthService reports measured cache statistics.
type HealthService struct {
	DB       *gorm.DB
	Clock    clock.Clock
	MaxBytes int64

	Content *ContentService
	Sync    *SyncQueue

	initFlag
}

// Name implements Service.
func (h *HealthService) Name() string { return NameHealth }

// Init implements Service.
func (h *HealthService) Init(ctx context.Context) error {
	if h.DB == nil || h.Clock == nil || h.Content == nil {
		return fmt.Errorf("%w: health needs a store, a clock and content", ErrInvalidConfig)
	}
	h.on.Store(true)
	return nil
}

// Dispose implements Service.
func (h *HealthService) Dispose(ctx context.Context) error {
	h.on.Store(false)
	return nil
}

// Snapshot measures the store. Sync figures are left empty while the sync
// queue is not initialized.
func (h *HealthService) Snapshot(ctx context.Context) (domain.HealthReport, error) {
	ctx, span := otel.Tracer("services/HealthService").Start(ctx, "Snapshot")
	defer span.End()

	rep := domain.HealthReport{GeneratedAt: h.Clock.Now().UTC(), BudgetBytes: h.MaxBytes}
	if err := h.guard(); err != nil {
		return rep, err
	}

	for _, p := range reportedPartitions {
		count, bytes, updated, err := repo.PartitionStats(ctx, h.DB, p)
		if err != nil {
			return rep, err
		}
		rep.Partitions = append(rep.Partitions, domain.PartitionStat{
			Partition: p,
			Entries:   count,
			Bytes:     bytes,
			UpdatedAt: updated,
		})
		rep.TotalBytes += bytes
	}
	if h.MaxBytes > 0 {
		rep.BudgetUtilization = float64(rep.TotalBytes) / float64(h.MaxBytes)
	}
	metrics.CacheBytes.Set(float64(rep.TotalBytes))

	if sum, err := h.Content.Summary(ctx); err == nil {
		rep.HasToday = sum.HasToday
		rep.TodayIsStale = sum.TodayIsStale
		rep.HasPreviousDay = sum.HasPreviousDay
		rep.HistoryLength = sum.HistoryLength
		rep.LastRefresh = sum.LastRefresh
	}

	if h.Sync != nil && h.Sync.Initialized() {
		if st, err := h.Sync.Status(ctx); err == nil {
			rep.QueueLength = st.QueueLength
			rep.LastSync = st.LastSuccess
		}
	}
	return rep, nil
}
