// Package metrics exposes Prometheus collectors for the cache subsystem.
//
// Label sets are closed enums (result, fallback type, partition, outcome,
// trigger, path) so series cardinality stays bounded. All collectors are
// registered with the default registry in init and are safe for concurrent use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "todayfeed"

var (
	// ContentLookups counts GetToday calls by result: hit, stale, miss, error.
	ContentLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_lookups_total",
			Help:      "Today content lookups by result.",
		},
		[]string{"result"},
	)

	// FallbackResolutions counts fallback chain resolutions by provenance.
	FallbackResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_resolutions_total",
			Help:      "Fallback chain resolutions by fallback type.",
		},
		[]string{"type"},
	)

	// StaleNotices counts emitted (not suppressed) stale-content notices.
	StaleNotices = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_notices_total",
			Help:      "Stale content notices that passed the rate limiter.",
		},
	)

	// Evictions counts entries evicted by budget enforcement per partition.
	Evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Entries evicted to keep the cache under its byte ceiling.",
		},
		[]string{"partition"},
	)

	// CacheBytes is the last measured aggregate size of the store.
	CacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Serialized bytes across all cache partitions.",
		},
	)

	// SyncDrains counts drain attempts by outcome: success, failure, skipped, empty.
	SyncDrains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_drains_total",
			Help:      "Sync queue drain attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// SyncQueueDepth is the pending interaction count after the last mutation.
	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Pending interactions waiting to be synced.",
		},
	)

	// TimezoneChanges counts detected changes by signal: identifier, offset, dst.
	TimezoneChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timezone_changes_total",
			Help:      "Detected timezone changes by signal.",
		},
		[]string{"signal"},
	)

	// WarmingRuns counts warming passes by trigger and outcome.
	WarmingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warming_runs_total",
			Help:      "Warming passes by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	// RolloutDecisions counts rollout gate evaluations by resulting path.
	RolloutDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollout_decisions_total",
			Help:      "Rollout gate evaluations by selected code path.",
		},
		[]string{"path"},
	)

	// LifecycleInitialized is 1 while the lifecycle manager is initialized.
	LifecycleInitialized = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_initialized",
			Help:      "1 when the cache lifecycle is initialized, else 0.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ContentLookups,
		FallbackResolutions,
		StaleNotices,
		Evictions,
		CacheBytes,
		SyncDrains,
		SyncQueueDepth,
		TimezoneChanges,
		WarmingRuns,
		RolloutDecisions,
		LifecycleInitialized,
	)
}

// PathLabel maps a rollout decision to its label value.
func PathLabel(useNew bool) string {
	if useNew {
		return "new"
	}
	return "legacy"
}
