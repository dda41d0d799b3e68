// Artifact and activity HTTP handlers.
//
// This file exposes the processing-cache and history endpoints:
//   - GET    /scans/:id/artifact   (cached crop geometry + extracted fields)
//   - POST   /scans/:id/artifact   (partial merge)
//   - DELETE /scans/:id/artifact   (invalidate, forces reprocessing)
//   - GET    /scans/unlisted       (processed but not yet listed)
//   - GET    /sessions/:id/activity
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pverne/scanledger/internal/domain"
)

// MergeArtifactRequest is a partial artifact update. Absent fields keep
// their stored values; processed marks the artifact usable.
type MergeArtifactRequest struct {
	CropGeometry *domain.CropGeometry `json:"crop_geometry,omitempty"`
	DerivedPaths []string             `json:"derived_paths,omitempty"`
	Title        *string              `json:"title,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Condition    *string              `json:"condition,omitempty"`
	Price        *float64             `json:"price,omitempty"`
	Model        *string              `json:"model,omitempty"`
	Country      *string              `json:"country,omitempty"`
	Year         *int                 `json:"year,omitempty"`
	Denomination *string              `json:"denomination,omitempty"`
	Processed    bool                 `json:"processed,omitempty"`
}

func (r MergeArtifactRequest) patch() domain.ArtifactPatch {
	p := domain.ArtifactPatch{
		CropGeometry: r.CropGeometry,
		Title:        r.Title,
		Description:  r.Description,
		Condition:    r.Condition,
		Price:        r.Price,
		Model:        r.Model,
		Country:      r.Country,
		Year:         r.Year,
		Denomination: r.Denomination,
	}
	if r.DerivedPaths != nil {
		paths := domain.StringList(r.DerivedPaths)
		p.DerivedPaths = &paths
	}
	if r.Processed {
		now := time.Now().UTC()
		p.ProcessedAt = &now
	}
	return p
}

// scanIDParam validates the :id path parameter as a UUID.
func scanIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scan id must be a UUID")
		return "", false
	}
	return id, true
}

// GetArtifact returns the cached artifact for a scan, 404 on a cache miss.
func (h *Handlers) GetArtifact(c *gin.Context) {
	id, okID := scanIDParam(c)
	if !okID {
		return
	}
	art, err := h.cache.Lookup(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, art)
}

// MergeArtifact applies a partial update to a scan's artifact.
func (h *Handlers) MergeArtifact(c *gin.Context) {
	id, okID := scanIDParam(c)
	if !okID {
		return
	}
	var req MergeArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.cache.Merge(c.Request.Context(), id, req.patch()); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// InvalidateArtifact clears the processed marker so the next upload of the
// same content recomputes instead of reusing.
func (h *Handlers) InvalidateArtifact(c *gin.Context) {
	id, okID := scanIDParam(c)
	if !okID {
		return
	}
	if err := h.cache.Invalidate(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// UnlistedScans returns scans with a usable artifact but no listing.
func (h *Handlers) UnlistedScans(c *gin.Context) {
	scans, err := h.scans.Unlisted(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"scans": scans})
}

// SessionActivity returns a session's activity records oldest-first.
func (h *Handlers) SessionActivity(c *gin.Context) {
	sid := strings.TrimSpace(c.Param("id"))
	if sid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id required")
		return
	}
	records, err := h.activity.History(c.Request.Context(), sid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"activity": records})
}
