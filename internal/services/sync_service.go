// Package services – SyncQueue
//
// SyncQueue persists user interactions waiting to be sent upstream and
// drains them in one batch when asked (manually or on a connectivity change).
// Overlapping drains collapse into one: a drain that finds another in flight
// returns immediately with Skipped set.
//
// Failures are appended to a capped rolling error log and retried with
// exponential backoff on the injected clock until MaxRetries is reached;
// after that the retry counter resets and the queue waits for a later drain.
// Items that keep failing past ItemRetryLimit are abandoned.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
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

// Syncer sends a batch of interactions upstream.
type Syncer interface {
	SyncBatch(ctx context.Context, items []domain.PendingInteraction) error
}

// DrainResult reports one drain attempt.
type DrainResult struct {
	Skipped        bool          `json:"skipped"`
	Empty          bool          `json:"empty"`
	Synced         int           `json:"synced"`
	Failed         bool          `json:"failed"`
	Abandoned      int           `json:"abandoned"`
	RetryScheduled bool          `json:"retry_scheduled"`
	RetryIn        time.Duration `json:"retry_in,omitempty"`
}

// SyncQueue is the pending-interaction queue.
type SyncQueue struct {
	DB     *gorm.DB
	Clock  clock.Clock
	Remote Syncer
	Config config.SyncConfig

	initFlag

	// inProgress collapses overlapping drains.
	inProgress atomic.Bool

	// mu serializes read-modify-write of the sync partition.
	mu sync.Mutex

	retryMu    sync.Mutex
	retryCount int
	retryTimer clock.Timer
}

// Name implements Service.
func (q *SyncQueue) Name() string { return NameSync }

// Init implements Service.
func (q *SyncQueue) Init(ctx context.Context) error {
	if q.DB == nil || q.Clock == nil || q.Remote == nil {
		return fmt.Errorf("%w: sync queue needs a store, a clock and a remote", ErrInvalidConfig)
	}
	if q.Config.QueueLimit <= 0 || q.Config.ErrorLimit <= 0 {
		return fmt.Errorf("%w: sync queue and error limits must be positive", ErrInvalidConfig)
	}
	q.retryMu.Lock()
	q.retryCount = 0
	q.retryMu.Unlock()
	q.on.Store(true)

	if items, err := q.loadQueue(ctx); err == nil {
		metrics.SyncQueueDepth.Set(float64(len(items)))
	}
	return nil
}

// Dispose implements Service. Scheduled retries are cancelled; an in-flight
// drain is left to finish.
func (q *SyncQueue) Dispose(ctx context.Context) error {
	q.on.Store(false)
	q.retryMu.Lock()
	defer q.retryMu.Unlock()
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	q.retryCount = 0
	return nil
}

// Enqueue appends a timestamped interaction with a zero retry count. When the
// queue is full the oldest entries are dropped.
func (q *SyncQueue) Enqueue(ctx context.Context, action string, payload json.RawMessage) (domain.PendingInteraction, error) {
	tr := otel.Tracer("services/SyncQueue")
	ctx, span := tr.Start(ctx, "Enqueue",
		trace.WithAttributes(attribute.String("action", action)),
	)
	defer span.End()

	if err := q.guard(); err != nil {
		return domain.PendingInteraction{}, err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.PendingInteraction{}, ErrEmptyAction
	}

	item := domain.PendingInteraction{
		QueueID:   uuid.NewString(),
		Action:    action,
		Payload:   payload,
		Timestamp: q.Clock.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadQueue(ctx)
	if err != nil {
		q.warnMiss(domain.KeySyncQueue, err)
	}
	items = append(items, item)
	if over := len(items) - q.Config.QueueLimit; over > 0 {
		items = items[over:]
	}
	if err := q.saveQueue(ctx, items); err != nil {
		return domain.PendingInteraction{}, err
	}
	return item, nil
}

// Drain sends the whole queue in one batch.
func (q *SyncQueue) Drain(ctx context.Context) (DrainResult, error) {
	tr := otel.Tracer("services/SyncQueue")
	ctx, span := tr.Start(ctx, "Drain")
	defer span.End()

	if err := q.guard(); err != nil {
		return DrainResult{}, err
	}
	if !q.inProgress.CompareAndSwap(false, true) {
		metrics.SyncDrains.WithLabelValues("skipped").Inc()
		return DrainResult{Skipped: true}, nil
	}
	defer q.inProgress.Store(false)

	q.mu.Lock()
	items, err := q.loadQueue(ctx)
	q.mu.Unlock()
	if err != nil {
		q.warnMiss(domain.KeySyncQueue, err)
	}
	span.SetAttributes(attribute.Int("batch_size", len(items)))
	if len(items) == 0 {
		metrics.SyncDrains.WithLabelValues("empty").Inc()
		return DrainResult{Empty: true}, nil
	}

	if serr := q.Remote.SyncBatch(ctx, items); serr != nil {
		return q.onFailure(ctx, items, serr)
	}
	return q.onSuccess(ctx, items)
}

func (q *SyncQueue) onSuccess(ctx context.Context, batch []domain.PendingInteraction) (DrainResult, error) {
	sent := make(map[string]bool, len(batch))
	for _, it := range batch {
		sent[it.QueueID] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Interactions enqueued while the batch was in flight stay queued.
	cur, err := q.loadQueue(ctx)
	if err != nil {
		q.warnMiss(domain.KeySyncQueue, err)
	}
	rest := cur[:0]
	for _, it := range cur {
		if !sent[it.QueueID] {
			rest = append(rest, it)
		}
	}
	if err := q.saveQueue(ctx, rest); err != nil {
		return DrainResult{}, err
	}
	if _, err := repo.PutJSON(ctx, q.DB, domain.KeySyncLastSuccess, q.Clock.Now().UTC()); err != nil {
		return DrainResult{}, err
	}

	q.retryMu.Lock()
	q.retryCount = 0
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	q.retryMu.Unlock()

	metrics.SyncDrains.WithLabelValues("success").Inc()
	logger := sysutil.Component(NameSync)
	logger.Info().Int("synced", len(batch)).Int("remaining", len(rest)).Msg("sync queue drained")
	return DrainResult{Synced: len(batch)}, nil
}

func (q *SyncQueue) onFailure(ctx context.Context, batch []domain.PendingInteraction, cause error) (DrainResult, error) {
	metrics.SyncDrains.WithLabelValues("failure").Inc()
	res := DrainResult{Failed: true}

	q.retryMu.Lock()
	q.retryCount++
	attempt := q.retryCount
	q.retryMu.Unlock()

	inBatch := make(map[string]bool, len(batch))
	for _, it := range batch {
		inBatch[it.QueueID] = true
	}

	q.mu.Lock()
	errs := q.loadErrors(ctx)
	errs = append(errs, domain.SyncError{
		At:        q.Clock.Now().UTC(),
		Message:   cause.Error(),
		BatchSize: len(batch),
		Attempt:   attempt,
	})
	if over := len(errs) - q.Config.ErrorLimit; over > 0 {
		errs = errs[over:]
	}
	_, perr := repo.PutJSON(ctx, q.DB, domain.KeySyncErrors, errs)

	cur, err := q.loadQueue(ctx)
	if err != nil {
		q.warnMiss(domain.KeySyncQueue, err)
	}
	kept := cur[:0]
	for _, it := range cur {
		if inBatch[it.QueueID] {
			it.RetryCount++
			if q.Config.ItemRetryLimit > 0 && it.RetryCount > q.Config.ItemRetryLimit {
				res.Abandoned++
				continue
			}
		}
		kept = append(kept, it)
	}
	if serr := q.saveQueue(ctx, kept); perr == nil {
		perr = serr
	}
	q.mu.Unlock()

	logger := sysutil.Component(NameSync)
	if perr != nil {
		logger.Warn().Err(perr).Msg("could not persist sync failure state")
	}

	q.retryMu.Lock()
	if q.retryCount < q.Config.MaxRetries && q.on.Load() {
		delay := q.Config.BaseDelay * time.Duration(1<<uint(q.retryCount))
		if q.retryTimer != nil {
			q.retryTimer.Stop()
		}
		q.retryTimer = q.Clock.AfterFunc(delay, q.retry)
		res.RetryScheduled = true
		res.RetryIn = delay
	} else {
		q.retryCount = 0
	}
	q.retryMu.Unlock()

	logger.Warn().
		Err(cause).
		Int("batch_size", len(batch)).
		Int("attempt", attempt).
		Int("abandoned", res.Abandoned).
		Bool("retry_scheduled", res.RetryScheduled).
		Dur("retry_in", res.RetryIn).
		Msg("sync drain failed")
	return res, fmt.Errorf("%w: %v", ErrSyncFailed, cause)
}

// retry runs a scheduled drain. Timer callbacks have no caller context.
func (q *SyncQueue) retry() {
	q.retryMu.Lock()
	q.retryTimer = nil
	q.retryMu.Unlock()
	if !q.on.Load() {
		return
	}
	if _, err := q.Drain(context.Background()); err != nil && !errors.Is(err, ErrSyncFailed) {
		logger := sysutil.Component(NameSync)
		logger.Warn().Err(err).Msg("scheduled sync retry failed")
	}
}

// PurgeExpired removes queue items and error log entries older than the
// retention window and returns how many entries were removed.
func (q *SyncQueue) PurgeExpired(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/SyncQueue")
	ctx, span := tr.Start(ctx, "PurgeExpired")
	defer span.End()

	if err := q.guard(); err != nil {
		return 0, err
	}
	if q.Config.Retention <= 0 {
		return 0, nil
	}
	cutoff := q.Clock.Now().Add(-q.Config.Retention)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	items, err := q.loadQueue(ctx)
	if err != nil {
		q.warnMiss(domain.KeySyncQueue, err)
	}
	keptItems := items[:0]
	for _, it := range items {
		if it.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keptItems = append(keptItems, it)
	}
	errs := q.loadErrors(ctx)
	keptErrs := errs[:0]
	for _, e := range errs {
		if e.At.Before(cutoff) {
			removed++
			continue
		}
		keptErrs = append(keptErrs, e)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := q.saveQueue(ctx, keptItems); err != nil {
		return 0, err
	}
	if _, err := repo.PutJSON(ctx, q.DB, domain.KeySyncErrors, keptErrs); err != nil {
		return 0, err
	}
	return removed, nil
}

// EvictOldestError drops the oldest entry of the error log.
func (q *SyncQueue) EvictOldestError(ctx context.Context) (bool, error) {
	if err := q.guard(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	errs := q.loadErrors(ctx)
	if len(errs) == 0 {
		return false, nil
	}
	errs = errs[1:]
	if len(errs) == 0 {
		return true, repo.DeleteValue(ctx, q.DB, domain.KeySyncErrors)
	}
	_, err := repo.PutJSON(ctx, q.DB, domain.KeySyncErrors, errs)
	return err == nil, err
}

// Pending returns a copy of the queued interactions, oldest first.
func (q *SyncQueue) Pending(ctx context.Context) ([]domain.PendingInteraction, error) {
	if err := q.guard(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items, err := q.loadQueue(ctx)
	if err != nil {
		q.warnMiss(domain.KeySyncQueue, err)
	}
	return items, nil
}

// Errors returns the rolling error log, oldest first.
func (q *SyncQueue) Errors(ctx context.Context) ([]domain.SyncError, error) {
	if err := q.guard(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadErrors(ctx), nil
}

// LastSuccess is the time of the last successful drain, or nil.
func (q *SyncQueue) LastSuccess(ctx context.Context) (*time.Time, error) {
	if err := q.guard(); err != nil {
		return nil, err
	}
	var t time.Time
	if err := repo.GetJSON(ctx, q.DB, domain.KeySyncLastSuccess, &t); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			q.warnMiss(domain.KeySyncLastSuccess, err)
		}
		return nil, nil
	}
	return &t, nil
}

// Status summarizes the queue.
func (q *SyncQueue) Status(ctx context.Context) (domain.SyncStatus, error) {
	tr := otel.Tracer("services/SyncQueue")
	ctx, span := tr.Start(ctx, "Status")
	defer span.End()

	items, err := q.Pending(ctx)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	errs, _ := q.Errors(ctx)
	last, _ := q.LastSuccess(ctx)

	q.retryMu.Lock()
	st := domain.SyncStatus{
		QueueLength:  len(items),
		ErrorCount:   len(errs),
		LastSuccess:  last,
		RetryCount:   q.retryCount,
		InProgress:   q.inProgress.Load(),
		RetryPending: q.retryTimer != nil,
	}
	q.retryMu.Unlock()
	return st, nil
}

func (q *SyncQueue) loadQueue(ctx context.Context) ([]domain.PendingInteraction, error) {
	var items []domain.PendingInteraction
	if err := repo.GetJSON(ctx, q.DB, domain.KeySyncQueue, &items); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return items, nil
}

func (q *SyncQueue) saveQueue(ctx context.Context, items []domain.PendingInteraction) error {
	if items == nil {
		items = []domain.PendingInteraction{}
	}
	if _, err := repo.PutJSON(ctx, q.DB, domain.KeySyncQueue, items); err != nil {
		return err
	}
	metrics.SyncQueueDepth.Set(float64(len(items)))
	return nil
}

func (q *SyncQueue) loadErrors(ctx context.Context) []domain.SyncError {
	var errs []domain.SyncError
	if err := repo.GetJSON(ctx, q.DB, domain.KeySyncErrors, &errs); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			q.warnMiss(domain.KeySyncErrors, err)
		}
		return nil
	}
	return errs
}

func (q *SyncQueue) warnMiss(key string, err error) {
	logger := sysutil.Component(NameSync)
	logger.Warn().Err(err).Str("key", key).Msg("sync read failed; treating as empty")
}
