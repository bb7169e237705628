// Package repo implements the data persistence layer for the Today Feed cache.
// This file provides small aggregate queries used by the health report and
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/domain"
)

// PartitionStats returns aggregate metadata for one partition: the number of
// keys, their total size, and the greatest UpdatedAt among them.
//
// When the partition is empty, count and bytes are 0 and maxUpdatedAt is nil.
func PartitionStats(ctx context.Context, db *gorm.DB, partition string) (count, bytes int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.KVEntry{}).Where("partition_name = ?", partition)

	if err = q.Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}

	if bytes, err = PartitionBytes(ctx, db, partition); err != nil {
		return 0, 0, nil, err
	}

	// Latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = db.WithContext(ctx).Model(&domain.KVEntry{}).Where("partition_name = ?", partition)
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, bytes, &row.UpdatedAt, nil
}
