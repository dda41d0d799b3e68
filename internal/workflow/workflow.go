// Package workflow composes the identity resolver, processing cache,
// external collaborators, and activity log into the upload pipeline:
//
//	upload → resolve identity → cache lookup → (validate / repair /
//	recompute via crop+extract) → merge results → record activity
//
// The pipeline is synchronous and request-driven: every step completes or
// fails within the triggering call, and an abort at any point leaves a valid,
// resumable state (a scan with no artifact, an artifact with only geometry).
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/pverne/scanledger/internal/cropper"
	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/repo"
	"github.com/pverne/scanledger/internal/services"
	"github.com/pverne/scanledger/internal/vision"
)

// Upload is one incoming scanned image.
type Upload struct {
	SessionID string
	Kind      domain.ScanKind
	Filename  string
	Bytes     []byte
	Width     int
	Height    int

	// SourcePath is where the upload handler staged the file on disk; the
	// cropping collaborator reads images from paths, not memory.
	SourcePath string
}

// Outcome reports what the pipeline did for one upload.
type Outcome struct {
	Scan     *domain.Scan
	Artifact *domain.ScanArtifact
	// Reused is true when cached work was served instead of re-running
	// the collaborators.
	Reused bool
	// Repaired is true when missing derived files were recovered by copy.
	Repaired bool
}

// Pipeline wires the core services to the external collaborators.
type Pipeline struct {
	Identity  *services.IdentityService
	Cache     *services.CacheService
	Activity  *services.ActivityService
	Cropper   cropper.Cropper
	Extractor vision.Extractor

	// WorkDir is the session-local directory derived artifacts are
	// written into (and repaired into).
	WorkDir string
	// PromptVariant selects the extraction prompt (e.g. "postcard").
	PromptVariant string

	Log zerolog.Logger
}

// Process runs the full pipeline for one upload.
//
// First sight: detect the grid, crop, extract metadata, merge everything into
// the cache, and log "uploaded" + "processed". Re-sight: validate the cached
// derived files, repair them by copy if some are missing, and log "reused"
// with the originating session; the collaborators are not re-invoked.
// Extraction failure on first sight is absorbed: geometry and paths are still
// cached, the AI fields arrive on a later merge.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*Outcome, error) {
	res, err := p.Identity.Resolve(ctx, up.Bytes, up.Kind, up.Filename, up.Width, up.Height)
	if err != nil {
		return nil, err
	}
	scan := res.Scan

	if !res.Created {
		if out, ok := p.reuse(ctx, up, scan); ok {
			return out, nil
		}
		// Cache miss or unrepairable staleness: fall through and
		// recompute as if first sight.
	}

	outDir := filepath.Join(p.WorkDir, up.SessionID, string(up.Kind))
	artifact, err := p.compute(ctx, up, scan, outDir)
	if err != nil {
		return nil, err
	}

	action := domain.ActionUploaded
	if _, err := p.Activity.Append(ctx, up.SessionID, scan.ID, action, domain.Details{
		"filename": up.Filename,
		"kind":     string(up.Kind),
	}); err != nil {
		return nil, err
	}
	if _, err := p.Activity.Append(ctx, up.SessionID, scan.ID, domain.ActionProcessed, nil); err != nil {
		return nil, err
	}

	return &Outcome{Scan: scan, Artifact: artifact}, nil
}

// reuse serves a prior session's work. Returns ok=false when there is
// nothing usable (never processed, or stale beyond repair) and the caller
// must recompute.
func (p *Pipeline) reuse(ctx context.Context, up Upload, scan *domain.Scan) (*Outcome, bool) {
	artifact, err := p.Cache.Lookup(ctx, scan.ID)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			p.Log.Error().Err(err).Str("scan_id", scan.ID).Msg("cache lookup failed; recomputing")
		}
		return nil, false
	}

	repaired := false
	if len(artifact.DerivedPaths) > 0 {
		check := services.ValidateArtifacts(artifact.DerivedPaths)
		if !check.OK {
			destDir := filepath.Join(p.WorkDir, up.SessionID, string(up.Kind))
			newPaths, rerr := p.Cache.Repair(ctx, scan.ID, artifact.DerivedPaths, destDir)
			if rerr != nil {
				p.Log.Warn().Err(rerr).Str("scan_id", scan.ID).Msg("repair failed; treating as cache miss")
				return nil, false
			}
			artifact.DerivedPaths = newPaths
			repaired = true
		}
	}

	source := p.originSession(ctx, scan.ID, up.SessionID)
	_, err = p.Activity.Append(ctx, up.SessionID, scan.ID, domain.ActionReused, domain.Details{
		"source_session": source,
		"source_scan_id": scan.ID,
		"repaired":       repaired,
	})
	if err != nil {
		p.Log.Error().Err(err).Str("scan_id", scan.ID).Msg("failed to record reuse")
	}

	return &Outcome{Scan: scan, Artifact: artifact, Reused: true, Repaired: repaired}, true
}

// compute runs the crop and extraction collaborators and merges their output.
func (p *Pipeline) compute(ctx context.Context, up Upload, scan *domain.Scan, outDir string) (*domain.ScanArtifact, error) {
	layout, err := p.Cropper.DetectGrid(ctx, up.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("detect grid: %w", err)
	}
	geom := layout.Geometry()

	paths, err := p.Cropper.Crop(ctx, up.SourcePath, geom, outDir)
	if err != nil {
		return nil, fmt.Errorf("crop: %w", err)
	}

	now := time.Now().UTC()
	derived := domain.StringList(paths)
	if err := p.Cache.Merge(ctx, scan.ID, domain.ArtifactPatch{
		CropGeometry: &geom,
		DerivedPaths: &derived,
		ProcessedAt:  &now,
	}); err != nil {
		return nil, err
	}

	// Extraction is best-effort: a failed or partial model call leaves the
	// geometry merge intact and the fields arrive on a later pass.
	if p.Extractor != nil {
		if fields, xerr := p.Extractor.Extract(ctx, up.SourcePath, p.PromptVariant); xerr != nil {
			p.Log.Warn().Err(xerr).Str("scan_id", scan.ID).Msg("metadata extraction failed; continuing without fields")
		} else if err := p.Cache.Merge(ctx, scan.ID, domain.ArtifactPatch{
			Title:        fields.Title,
			Description:  fields.Description,
			Condition:    fields.Condition,
			Price:        fields.Price,
			Model:        fields.Model,
			Country:      fields.Country,
			Year:         fields.Year,
			Denomination: fields.Denomination,
		}); err != nil {
			return nil, err
		}
	}

	artifact, err := p.Cache.Lookup(ctx, scan.ID)
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// Combine runs face/verso composition for a processed pair of sheet scans,
// resolves the combined outputs as new scans, and logs "combined" entries.
func (p *Pipeline) Combine(ctx context.Context, sessionID, faceScanID, versoScanID string) (*cropper.CombineResult, error) {
	face, err := p.Cache.Lookup(ctx, faceScanID)
	if err != nil {
		return nil, fmt.Errorf("face artifact: %w", err)
	}
	verso, err := p.Cache.Lookup(ctx, versoScanID)
	if err != nil {
		return nil, fmt.Errorf("verso artifact: %w", err)
	}
	if len(face.DerivedPaths) == 0 || len(verso.DerivedPaths) == 0 {
		return nil, services.ErrNotFound
	}

	faceDir := filepath.Dir(face.DerivedPaths[0])
	versoDir := filepath.Dir(verso.DerivedPaths[0])
	outDir := filepath.Join(p.WorkDir, sessionID, "combined")

	res, err := p.Cropper.Combine(ctx, faceDir, versoDir, outDir)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}

	for _, scanID := range []string{faceScanID, versoScanID} {
		if _, err := p.Activity.Append(ctx, sessionID, scanID, domain.ActionCombined, domain.Details{
			"lot_count":      len(res.LotPaths),
			"combined_count": len(res.CombinedPaths),
		}); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// originSession finds the earliest session that touched a scan, so a reused
// entry can point at where the cached work came from. Falls back to the
// current session when history is unavailable.
func (p *Pipeline) originSession(ctx context.Context, scanID, fallback string) string {
	recs, err := repo.ScanHistory(ctx, p.Activity.DB, scanID)
	if err != nil || len(recs) == 0 {
		return fallback
	}
	return recs[0].SessionID
}
