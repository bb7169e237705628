package domain

import "time"

// PartitionStat is the measured footprint of one store partition.
type PartitionStat struct {
	Partition string     `json:"partition"`
	Entries   int64      `json:"entries"`
	Bytes     int64      `json:"bytes"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// HealthReport is a measured snapshot of the cache.
type HealthReport struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	TotalBytes        int64           `json:"total_bytes"`
	BudgetBytes       int64           `json:"budget_bytes"`
	BudgetUtilization float64         `json:"budget_utilization"`
	Partitions        []PartitionStat `json:"partitions"`
	HasToday          bool            `json:"has_today"`
	TodayIsStale      bool            `json:"today_is_stale"`
	HasPreviousDay    bool            `json:"has_previous_day"`
	HistoryLength     int             `json:"history_length"`
	QueueLength       int             `json:"queue_length"`
	LastRefresh       *time.Time      `json:"last_refresh,omitempty"`
	LastSync          *time.Time      `json:"last_sync,omitempty"`
}

// EvictionReport describes one budget-enforcement pass.
type EvictionReport struct {
	BytesBefore    int64 `json:"bytes_before"`
	BytesAfter     int64 `json:"bytes_after"`
	HistoryEvicted int   `json:"history_evicted"`
	ErrorsEvicted  int   `json:"errors_evicted"`
	OverBudget     bool  `json:"over_budget"`
	ExpiredPurged  int   `json:"expired_purged,omitempty"`
}
