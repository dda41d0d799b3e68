// Listing HTTP handlers.
//
// This file exposes the marketplace lifecycle endpoints:
//   - POST /listings                (create draft, mints SKU)
//   - POST /listings/:sku/submit    (drive one submission attempt)
//   - PUT  /listings/:sku           (correct metadata on draft/failed)
//   - POST /listings/:sku/relist    (fresh draft for a failed/listed SKU)
//   - GET  /listings/failed
//   - GET  /scans/:id/listing       (latest listing for a scan)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pverne/scanledger/internal/marketplace"
	"github.com/pverne/scanledger/internal/services"
)

// CreateListingRequest is the JSON payload for creating a draft listing.
type CreateListingRequest struct {
	ScanID     string  `json:"scan_id" binding:"required"`
	Title      string  `json:"title" binding:"required"`
	Price      float64 `json:"price"`
	Condition  string  `json:"condition"`
	CategoryID int     `json:"category_id" binding:"required"`
}

// ListingMetadataRequest is the JSON payload for correcting a listing.
type ListingMetadataRequest struct {
	Title      string  `json:"title" binding:"required"`
	Price      float64 `json:"price"`
	Condition  string  `json:"condition"`
	CategoryID int     `json:"category_id" binding:"required"`
}

// CreateListing mints a SKU and persists a draft. No marketplace call.
func (h *Handlers) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	l, err := h.listings.CreateDraft(c.Request.Context(), req.ScanID, sessionID(c), services.ListingMetadata{
		Title:      strings.TrimSpace(req.Title),
		Price:      req.Price,
		Condition:  req.Condition,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

// SubmitListing drives one submission attempt for an existing SKU.
//
// Responses: 200 listed; 422 terminal rejection (category_not_leaf or
// submit_failed, status now failed); 502 transient marketplace failure
// (submit_retryable, status stays pending, same SKU may be resubmitted);
// 409 when the SKU is already listed.
func (h *Handlers) SubmitListing(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sku required")
		return
	}

	out, err := h.listings.Submit(c.Request.Context(), sku)
	if err != nil {
		if out != nil && out.Retryable {
			fail(c, http.StatusBadGateway, ErrCodeSubmitRetryable, err.Error())
			return
		}
		if apiErr, okAPI := marketplace.AsAPIError(err); okAPI {
			// A transient marketplace failure can surface without an
			// outcome, e.g. when the category check itself times out.
			if apiErr.Retryable() {
				fail(c, http.StatusBadGateway, ErrCodeSubmitRetryable, err.Error())
				return
			}
			fail(c, http.StatusUnprocessableEntity, ErrCodeSubmitFailed, apiErr.Error())
			return
		}
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, out.Listing)
}

// CorrectListing replaces the metadata of a draft or failed listing.
func (h *Handlers) CorrectListing(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	var req ListingMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	err := h.listings.CorrectMetadata(c.Request.Context(), sku, services.ListingMetadata{
		Title:      strings.TrimSpace(req.Title),
		Price:      req.Price,
		Condition:  req.Condition,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// RelistListing creates a fresh draft with a new SKU for a failed or listed
// SKU, carrying its metadata over.
func (h *Handlers) RelistListing(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	l, err := h.listings.Relist(c.Request.Context(), sku)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

// FailedListings returns every listing currently in status failed with its
// stored error detail, the operator's repair queue.
func (h *Handlers) FailedListings(c *gin.Context) {
	items, err := h.listings.FailedListings(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"listings": items})
}

// ScanListing returns the latest listing for a scan, 404 when none exists.
func (h *Handlers) ScanListing(c *gin.Context) {
	id, okID := scanIDParam(c)
	if !okID {
		return
	}
	l, err := h.listings.StatusForScan(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}
