// Package services – Maintenance
//
// Maintenance keeps the aggregate size of the cache partitions under a fixed
// byte ceiling. Eviction is list-based: the oldest history entries go first,
// then the oldest sync error log entries. It also runs the periodic purge of
// expired sync entries and idempotency records.
package services

import (
	"context"
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

// EvictFunc drops the oldest entry of a list owned by another service and
// reports whether anything was removed.
type EvictFunc func(ctx context.Context) (bool, error)

// PurgeFunc removes expired entries and reports how many went.
type PurgeFunc func(ctx context.Context) (int, error)

// Maintenance enforces the cache byte ceiling.
type Maintenance struct {
	DB       *gorm.DB
	Clock    clock.Clock
	MaxBytes int64

	EvictHistory    EvictFunc
	EvictSyncErrors EvictFunc
	PurgeSync       PurgeFunc

	initFlag
	mu sync.Mutex
}

// Name implements Service.
func (m *Maintenance) Name() string { return NameMaintenance }

// Init implements Service.
func (m *Maintenance) Init(ctx context.Context) error {
	if m.DB == nil || m.Clock == nil {
		return fmt.Errorf("%w: maintenance needs a store and a clock", ErrInvalidConfig)
	}
	if m.MaxBytes <= 0 {
		return fmt.Errorf("%w: cache byte ceiling must be positive", ErrInvalidConfig)
	}
	m.on.Store(true)
	return nil
}

// Dispose implements Service.
func (m *Maintenance) Dispose(ctx context.Context) error {
	m.on.Store(false)
	return nil
}

// EnforceBudget evicts until the store plus incoming bytes fits under
// MaxBytes or nothing evictable is left. OverBudget in the report is true
// when the ceiling could not be met.
func (m *Maintenance) EnforceBudget(ctx context.Context, incoming int64) (domain.EvictionReport, error) {
	tr := otel.Tracer("services/Maintenance")
	ctx, span := tr.Start(ctx, "EnforceBudget",
		trace.WithAttributes(attribute.Int64("incoming_bytes", incoming)),
	)
	defer span.End()

	var rep domain.EvictionReport
	if err := m.guard(); err != nil {
		return rep, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	total, err := repo.TotalBytes(ctx, m.DB)
	if err != nil {
		return rep, err
	}
	rep.BytesBefore = total

	evict := func(fn EvictFunc, partition string, count *int) error {
		for fn != nil && total+incoming > m.MaxBytes {
			ok, err := fn(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			*count++
			metrics.Evictions.WithLabelValues(partition).Inc()
			if total, err = repo.TotalBytes(ctx, m.DB); err != nil {
				return err
			}
		}
		return nil
	}
	if err := evict(m.EvictHistory, domain.PartitionContent, &rep.HistoryEvicted); err != nil {
		return rep, err
	}
	if err := evict(m.EvictSyncErrors, domain.PartitionSync, &rep.ErrorsEvicted); err != nil {
		return rep, err
	}

	rep.BytesAfter = total
	rep.OverBudget = total+incoming > m.MaxBytes
	metrics.CacheBytes.Set(float64(total))

	if rep.HistoryEvicted+rep.ErrorsEvicted > 0 || rep.OverBudget {
		logger := sysutil.Component(NameMaintenance)
		logger.Info().
			Int64("bytes_before", rep.BytesBefore).
			Int64("bytes_after", rep.BytesAfter).
			Int64("incoming", incoming).
			Int("history_evicted", rep.HistoryEvicted).
			Int("errors_evicted", rep.ErrorsEvicted).
			Bool("over_budget", rep.OverBudget).
			Msg("cache budget enforced")
	}
	return rep, nil
}

// Run is the scheduled pass: purge expired entries, then enforce the budget.
func (m *Maintenance) Run(ctx context.Context) (domain.EvictionReport, error) {
	tr := otel.Tracer("services/Maintenance")
	ctx, span := tr.Start(ctx, "Run")
	defer span.End()

	if err := m.guard(); err != nil {
		return domain.EvictionReport{}, err
	}

	purged := 0
	if m.PurgeSync != nil {
		n, err := m.PurgeSync(ctx)
		if err != nil {
			return domain.EvictionReport{}, err
		}
		purged += n
	}
	// Idempotency rows are stamped with wall-clock time by the repo.
	n, err := repo.PurgeIdempotency(ctx, m.DB, time.Now().UTC())
	if err != nil {
		return domain.EvictionReport{}, err
	}
	purged += int(n)

	rep, err := m.EnforceBudget(ctx, 0)
	rep.ExpiredPurged = purged
	return rep, err
}
