// Package domain defines the persistence models and value types of the Today
// Feed cache: the key-value rows backing every cache partition, the content,
// interaction, timezone and rollout records stored in them, and the reports
// derived from them.
package domain

import (
	"strings"
	"time"
)

// KVEntry is one row of the process-wide key-value store. Values are JSON
// documents; Partition is the key prefix before the first dot and lets a
// service address (and wipe) its own slice of the store.
//
// Fields:
//   - Key: full key, e.g. "content.today" (primary key).
//   - Partition: owning partition, e.g. "content" (indexed).
//   - Value: serialized JSON value.
//   - SizeBytes: len(Value), kept so budget checks are a single SUM.
//   - UpdatedAt: last write time, managed by GORM.
type KVEntry struct {
	Key       string    `gorm:"type:varchar(128);primaryKey"`
	Partition string    `gorm:"column:partition_name;type:varchar(32);not null;index:idx_kv_partition"`
	Value     string    `gorm:"type:text;not null"`
	SizeBytes int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"index"`
}

// TableName returns the database table name for KVEntry.
func (KVEntry) TableName() string { return "kv_entries" }

// Partitions of the store.
const (
	PartitionContent   = "content"
	PartitionSync      = "sync"
	PartitionTimezone  = "timezone"
	PartitionWarming   = "warming"
	PartitionMigration = "migration"
	PartitionCache     = "cache"
)

// Fixed keys, one per stored value.
const (
	KeyContentToday       = "content.today"
	KeyContentPreviousDay = "content.previous_day"
	KeyContentHistory     = "content.history"
	KeyContentMetadata    = "content.metadata"

	KeySyncQueue       = "sync.queue"
	KeySyncErrors      = "sync.errors"
	KeySyncLastSuccess = "sync.last_success"

	KeyTimezoneSnapshot = "timezone.snapshot"

	KeyWarmingStats = "warming.stats"

	KeyMigrationPhase       = "migration.phase"
	KeyMigrationStrategy    = "migration.strategy"
	KeyMigrationPercentage  = "migration.percentage"
	KeyMigrationRollback    = "migration.rollback"
	KeyMigrationForceCompat = "migration.force_compat"

	KeyCacheSchemaVersion = "cache.schema_version"
)

// CachePartitions are wiped by a schema-version migration. The migration
// partition holds administrative state and survives.
var CachePartitions = []string{
	PartitionContent,
	PartitionSync,
	PartitionTimezone,
	PartitionWarming,
}

// PartitionOf returns the partition a key belongs to.
func PartitionOf(key string) string {
	if i := strings.IndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return key
}
