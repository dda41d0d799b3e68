// Upload HTTP handlers.
//
// This file exposes the ingestion endpoint:
//   - POST /uploads  (multipart: file + session_id + kind)
//
// Handlers are transport-thin: they validate input, stage the file on disk,
// call the processing pipeline, and translate results into HTTP responses.
package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pverne/scanledger/internal/cropper"
	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/services"
	"github.com/pverne/scanledger/internal/workflow"
)

//
// Service contracts (context-aware)
//

// UploadPipeline runs the ingestion workflow for one scanned image.
// Implementations must be safe for concurrent use and honor ctx.
type UploadPipeline interface {
	Process(ctx context.Context, up workflow.Upload) (*workflow.Outcome, error)
	Combine(ctx context.Context, sessionID, faceScanID, versoScanID string) (*cropper.CombineResult, error)
}

// ArtifactService exposes the processing cache over scan artifacts.
type ArtifactService interface {
	Lookup(ctx context.Context, scanID string) (*domain.ScanArtifact, error)
	Merge(ctx context.Context, scanID string, patch domain.ArtifactPatch) error
	Invalidate(ctx context.Context, scanID string) error
}

// ScanRegistry answers scan identity queries.
type ScanRegistry interface {
	Get(ctx context.Context, scanID string) (*domain.Scan, error)
	Unlisted(ctx context.Context) ([]domain.Scan, error)
}

// ActivityLog reads the append-only session history.
type ActivityLog interface {
	History(ctx context.Context, sessionID string) ([]domain.ActivityRecord, error)
}

// ListingAPI drives listing records through their lifecycle.
type ListingAPI interface {
	CreateDraft(ctx context.Context, scanID, sessionID string, meta services.ListingMetadata) (*domain.Listing, error)
	Submit(ctx context.Context, sku string) (*services.SubmitOutcome, error)
	CorrectMetadata(ctx context.Context, sku string, meta services.ListingMetadata) error
	Relist(ctx context.Context, sku string) (*domain.Listing, error)
	FailedListings(ctx context.Context) ([]domain.Listing, error)
	StatusForScan(ctx context.Context, scanID string) (*domain.Listing, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for uploads, artifacts, activity, and
// listings. It depends on abstract service contracts to keep transport
// concerns separate from business logic.
type Handlers struct {
	pipeline UploadPipeline
	cache    ArtifactService
	scans    ScanRegistry
	activity ActivityLog
	listings ListingAPI

	// stagingDir is where raw uploads are written before the cropping
	// collaborator reads them back from disk.
	stagingDir string
}

// New constructs a Handlers instance bound to the given services.
func New(pipeline UploadPipeline, cache ArtifactService, scans ScanRegistry, activity ActivityLog, listings ListingAPI, stagingDir string) *Handlers {
	return &Handlers{
		pipeline:   pipeline,
		cache:      cache,
		scans:      scans,
		activity:   activity,
		listings:   listings,
		stagingDir: stagingDir,
	}
}

// sessionID extracts the operator session from the X-Session-ID header with a
// form/query fallback for multipart clients.
func sessionID(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("X-Session-ID")); h != "" {
		return h
	}
	if v := strings.TrimSpace(c.PostForm("session_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("session_id"))
}

// UploadResponse reports what ingestion did with the file.
type UploadResponse struct {
	Scan     *domain.Scan         `json:"scan"`
	Artifact *domain.ScanArtifact `json:"artifact,omitempty"`
	Reused   bool                 `json:"reused"`
	Repaired bool                 `json:"repaired"`
}

// Upload ingests one scanned image.
//
// Multipart fields: file (required), session_id (or X-Session-ID header),
// kind (face|verso|combined|lot), optional width/height hints. Returns 201
// for a first sight, 200 when cached work was reused.
func (h *Handlers) Upload(c *gin.Context) {
	sid := sessionID(c)
	if sid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}

	kind := domain.ScanKind(strings.TrimSpace(c.PostForm("kind")))
	if !kind.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kind must be one of face, verso, combined, lot")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file field required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	if len(data) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "upload is empty")
		return
	}

	width, _ := strconv.Atoi(c.PostForm("width"))
	height, _ := strconv.Atoi(c.PostForm("height"))

	staged, err := h.stage(fh.Filename, data)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not stage upload")
		return
	}

	out, err := h.pipeline.Process(c.Request.Context(), workflow.Upload{
		SessionID:  sid,
		Kind:       kind,
		Filename:   filepath.Base(fh.Filename),
		Bytes:      data,
		Width:      width,
		Height:     height,
		SourcePath: staged,
	})
	if err != nil {
		failService(c, err)
		return
	}

	status := http.StatusCreated
	if out.Reused {
		status = http.StatusOK
	}
	ok(c, status, UploadResponse{
		Scan:     out.Scan,
		Artifact: out.Artifact,
		Reused:   out.Reused,
		Repaired: out.Repaired,
	})
}

// CombineRequest names the processed face and verso scans to compose.
type CombineRequest struct {
	FaceScanID  string `json:"face_scan_id" binding:"required"`
	VersoScanID string `json:"verso_scan_id" binding:"required"`
}

// CombineResponse reports the composed output files.
type CombineResponse struct {
	LotPaths      []string `json:"lot_paths"`
	CombinedPaths []string `json:"combined_paths"`
}

// Combine composes face and verso crops of a sheet pair into per-position
// combined images and per-column lot images.
func (h *Handlers) Combine(c *gin.Context) {
	sid := sessionID(c)
	if sid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}
	var req CombineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.pipeline.Combine(c.Request.Context(), sid, req.FaceScanID, req.VersoScanID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, CombineResponse{
		LotPaths:      res.LotPaths,
		CombinedPaths: res.CombinedPaths,
	})
}

// stage writes the raw bytes to the staging directory under a collision-free
// name and returns the path.
func (h *Handlers) stage(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(h.stagingDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + "_" + filepath.Base(filename)
	path := filepath.Join(h.stagingDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
