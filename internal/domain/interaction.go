package domain

import (
	"encoding/json"
	"time"
)

// PendingInteraction is a user action waiting to be synced upstream.
type PendingInteraction struct {
	QueueID    string          `json:"queue_id"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

// SyncError is one entry of the rolling sync error log.
type SyncError struct {
	At        time.Time `json:"at"`
	Message   string    `json:"message"`
	BatchSize int       `json:"batch_size"`
	Attempt   int       `json:"attempt"`
}

// SyncStatus summarizes the sync queue.
type SyncStatus struct {
	QueueLength  int        `json:"queue_length"`
	ErrorCount   int        `json:"error_count"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	RetryCount   int        `json:"retry_count"`
	InProgress   bool       `json:"in_progress"`
	RetryPending bool       `json:"retry_pending"`
}
