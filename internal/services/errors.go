// Package services defines the business logic for scan identity, the
// processing cache, the session activity log, and listing synchronization.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages, HTTP status codes, or CLI exit codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrStoreUnavailable indicates the datastore could not be reached or
	// failed unexpectedly. Fatal for the current operation; the core never
	// retries it automatically and never fabricates a result instead.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates the requested record does not exist. For the
	// processing cache this is the expected miss, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrStaleArtifact indicates a cache hit whose backing files are gone
	// from disk and could not be recovered by copy. Callers fall back to
	// treating the entry as a miss.
	ErrStaleArtifact = errors.New("stale artifact")

	// ErrInvalidKind is returned when an upload declares an unknown scan
	// kind.
	ErrInvalidKind = errors.New("invalid scan kind")

	// ErrInvalidAction is returned when an activity append names an
	// unknown action.
	ErrInvalidAction = errors.New("invalid activity action")

	// ErrEmptyUpload is returned when an upload carries no bytes.
	ErrEmptyUpload = errors.New("upload is empty")

	// ErrInvalidMetadata is returned when listing metadata fails local
	// validation (blank title, negative price) before any external call.
	ErrInvalidMetadata = errors.New("invalid listing metadata")

	// ErrCategoryNotLeaf is returned when the chosen marketplace category
	// is a parent node. Submitting it would deterministically fail, so the
	// synchronizer rejects it locally as a terminal, caller-side error.
	ErrCategoryNotLeaf = errors.New("category is not a leaf")

	// ErrListingTerminal is returned when submit is called on a listing
	// already in the terminal listed state.
	ErrListingTerminal = errors.New("listing already listed")

	// ErrListingNotRelistable is returned when a fresh SKU is requested
	// for a listing that is not in a state that permits it.
	ErrListingNotRelistable = errors.New("listing not eligible for relist")
)
