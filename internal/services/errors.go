// Package services implements the Today Feed cache: the content store and its
// fallback chain, the pending-interaction sync queue, the timezone monitor,
// warming, maintenance, health statistics, the lifecycle manager that
// sequences them, and the migration/rollout gate.
//
// This file centralizes service-level error values so that they can be
// returned consistently and checked by callers with errors.Is. Translation
// into HTTP status codes happens in the handler layer.
package services

import "errors"

// Lifecycle and configuration errors.
var (
	// ErrNotInitialized is returned by any service method called before the
	// service was initialized (or after it was disposed). It signals a
	// programming error in the caller.
	ErrNotInitialized = errors.New("service not initialized")

	// ErrInvalidConfig wraps static configuration problems detected while
	// initializing. It aborts initialization.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Content errors.
var (
	// ErrInvalidContent is returned when a record fails validation before
	// being cached.
	ErrInvalidContent = errors.New("invalid content record")

	// ErrNoContent is returned when neither today's record nor any fallback
	// is available.
	ErrNoContent = errors.New("no content available")
)

// Sync errors.
var (
	// ErrEmptyAction is returned when an interaction has no action name.
	ErrEmptyAction = errors.New("interaction action is empty")

	// ErrSyncFailed wraps the collaborator error of a failed drain.
	ErrSyncFailed = errors.New("sync failed")
)

// Warming errors.
var (
	// ErrFetchFailed wraps the collaborator error of a failed warming fetch.
	ErrFetchFailed = errors.New("content fetch failed")
)

// Rollout errors.
var (
	// ErrInvalidPercentage is returned when a rollout percentage is outside 0..100.
	ErrInvalidPercentage = errors.New("rollout percentage must be between 0 and 100")

	// ErrInvalidPhase is returned for phases outside the ordered set.
	ErrInvalidPhase = errors.New("invalid rollout phase")
)
