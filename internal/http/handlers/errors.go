// Package handlers defines the HTTP-layer error codes used across endpoints.
//
// Codes are lowercase snake_case. Generic ones mirror HTTP status semantics;
// domain-specific ones carry failure classes that a status alone cannot
// convey (stale cached artifacts, non-leaf marketplace categories, submit
// outcomes). Handlers pick the most specific matching code and pass it to
// fail() together with the status and message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeStaleArtifact    = "stale_artifact"
	ErrCodeCategoryNotLeaf  = "category_not_leaf"
	ErrCodeSubmitFailed     = "submit_failed"
	ErrCodeSubmitRetryable  = "submit_retryable"
	ErrCodeUploadFailed     = "upload_failed"
)
