// Package marketplace abstracts the external selling platform. The core
// never speaks the platform's wire protocol directly; it submits a normalized
// payload keyed by an idempotency token (the SKU) and receives either a
// listing identifier plus URL or a coded error. The error code drives the
// synchronizer's retryable/terminal classification.
package marketplace

import (
	"context"
	"errors"
	"fmt"
)

// Error codes returned by the platform. The set is closed from the core's
// perspective: unknown codes classify as terminal so an unrecognized
// rejection is surfaced to the operator instead of being retried blindly.
const (
	CodeCategoryNotLeaf    = "category_not_leaf"
	CodePolicyMissing      = "policy_missing"
	CodeValidationRejected = "validation_rejected"
	CodeRateLimited        = "rate_limited"
	CodeAuthExpired        = "auth_expired"
	CodeServerError        = "server_error"
	CodeNetwork            = "network"
)

// APIError is a structured failure from the platform.
type APIError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace: %s: %s", e.Code, e.Message)
}

// Retryable reports whether the failure is transient: rate limiting, expired
// auth (refresh and retry), transient network trouble, or a platform-side
// 5xx. Everything else is terminal: retrying without correcting the
// submission would deterministically repeat the rejection.
func (e *APIError) Retryable() bool {
	switch e.Code {
	case CodeRateLimited, CodeAuthExpired, CodeServerError, CodeNetwork:
		return true
	}
	return false
}

// AsAPIError unwraps err into an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Submission is the normalized listing payload. SKU doubles as the
// idempotency token: the platform rejects a duplicate submission of the same
// SKU, so at-most-once holds from the core's perspective.
type Submission struct {
	SKU        string            `json:"sku"`
	Title      string            `json:"title"`
	Price      float64           `json:"price"`
	Condition  string            `json:"condition"`
	CategoryID int               `json:"category_id"`
	ImageURLs  []string          `json:"image_urls,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Result is a successful listing acknowledgement.
type Result struct {
	ItemID     string `json:"item_id"`
	AccountID  string `json:"account_id"`
	ListingURL string `json:"listing_url"`
}

// Client submits listings to the platform. Implementations must honor ctx for
// cancellation and deadlines; marketplace APIs are slow under load and the
// caller owns the timeout.
type Client interface {
	Submit(ctx context.Context, sub Submission) (*Result, error)
}

// Taxonomy answers category-tree questions. Only leaf categories accept
// listings; submitting to a parent node is a deterministic rejection, so the
// synchronizer checks this before spending a network call.
type Taxonomy interface {
	IsLeaf(ctx context.Context, categoryID int) (bool, error)
}
