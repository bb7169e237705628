// Package handlers defines the error codes carried in ErrorResponse.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP semantics, the rest name a
// cache condition that the status alone cannot convey.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Cache-specific:
	ErrCodeNotInitialized = "cache_not_initialized"
	ErrCodeNoContent      = "no_content"
	ErrCodeInvalidContent = "invalid_content"
	ErrCodeSyncFailed     = "sync_failed"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeInvalidRollout = "invalid_rollout"
)
