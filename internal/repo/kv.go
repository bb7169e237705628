// Package repo implements the data persistence layer for the Today Feed cache.
// This file provides the flat key-value store every cache partition lives in.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the "thin repository" approach: no business logic, only persistence.
//
// Error semantics:
//   - A missing key yields ErrNotFound (alias of gorm.ErrRecordNotFound).
//   - A stored value that cannot be decoded yields an error wrapping ErrCorrupt.
//   - Other DB errors are propagated as-is.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/today-feed-cache/internal/domain"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrCorrupt is wrapped by GetJSON when a stored value does not decode.
var ErrCorrupt = errors.New("corrupt value")

// GetValue returns the raw entry stored under key.
func GetValue(ctx context.Context, db *gorm.DB, key string) (*domain.KVEntry, error) {
	var e domain.KVEntry
	if err := db.WithContext(ctx).Where("key = ?", key).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetJSON decodes the value stored under key into dst.
func GetJSON(ctx context.Context, db *gorm.DB, key string, dst any) error {
	e, err := GetValue(ctx, db, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(e.Value), dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// PutValue upserts value under key and returns its stored size in bytes.
func PutValue(ctx context.Context, db *gorm.DB, key, value string) (int64, error) {
	e := &domain.KVEntry{
		Key:       key,
		Partition: domain.PartitionOf(key),
		Value:     value,
		SizeBytes: int64(len(value)),
		UpdatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"partition_name", "value", "size_bytes", "updated_at"}),
	}).Create(e).Error
	if err != nil {
		return 0, err
	}
	return e.SizeBytes, nil
}

// PutJSON encodes v and upserts it under key.
func PutJSON(ctx context.Context, db *gorm.DB, key string, v any) (int64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	return PutValue(ctx, db, key, string(b))
}

// DeleteValue removes key. Deleting a missing key is not an error.
func DeleteValue(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("key = ?", key).Delete(&domain.KVEntry{}).Error
}

// DeletePartition removes every key of partition and returns how many rows went.
func DeletePartition(ctx context.Context, db *gorm.DB, partition string) (int64, error) {
	res := db.WithContext(ctx).Where("partition_name = ?", partition).Delete(&domain.KVEntry{})
	return res.RowsAffected, res.Error
}

// ListKeys returns the keys of partition in lexical order.
func ListKeys(ctx context.Context, db *gorm.DB, partition string) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).
		Model(&domain.KVEntry{}).
		Where("partition_name = ?", partition).
		Order("key asc").
		Pluck("key", &keys).Error
	return keys, err
}

// TotalBytes returns the serialized size of every value in the store.
func TotalBytes(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.KVEntry{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// PartitionBytes returns the serialized size of one partition.
func PartitionBytes(ctx context.Context, db *gorm.DB, partition string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.KVEntry{}).
		Where("partition_name = ?", partition).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}
