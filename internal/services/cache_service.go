// Package services – CacheService
//
// This file implements the processing cache over scan artifacts. Lookup and
// merge are the hot path; artifact validation and repair-by-copy handle the
// out-of-band case where cached output files were deleted from disk (cleanup
// jobs, volume rotation) while the database row survived. Repair copies a
// still-existing sibling of the file rather than re-running the cropping or
// AI collaborators, which is strictly cheaper.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/repo"
)

// CacheService exposes the per-scan processing cache.
type CacheService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Log receives repair and staleness reports.
	Log zerolog.Logger
}

// Lookup returns the cached artifact for a scan. It returns ErrNotFound both
// when no artifact row exists and when a row exists but has never been marked
// processed. Callers must treat the two identically: nothing usable yet.
//
// Lookup does not verify that derived files still exist on disk; that check
// costs filesystem I/O per path and is the caller's decision via
// ValidateArtifacts before reusing paths.
func (s *CacheService) Lookup(ctx context.Context, scanID string) (*domain.ScanArtifact, error) {
	a, err := repo.GetUsableArtifact(ctx, s.DB, scanID)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Merge applies a partial artifact update. Only fields present in the patch
// are written; previously stored fields survive, so the crop stage and the
// AI-extraction stage can contribute to the same artifact at different times
// without coordinating. An empty patch is a no-op.
func (s *CacheService) Merge(ctx context.Context, scanID string, patch domain.ArtifactPatch) error {
	if patch.Empty() {
		return nil
	}
	if err := repo.MergeArtifact(ctx, s.DB, scanID, patch); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ValidationResult reports which of an artifact's derived paths still exist.
type ValidationResult struct {
	OK      bool
	Missing []string
}

// ValidateArtifacts checks each path for existence on disk. It is a pure
// check: no database access, no side effects. Directories do not count as
// artifacts.
func ValidateArtifacts(paths []string) ValidationResult {
	var missing []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			missing = append(missing, p)
		}
	}
	return ValidationResult{OK: len(missing) == 0, Missing: missing}
}

// Repair recovers missing derived files by copying from sourcePaths (e.g. a
// sibling session's copies of the same artifacts) into destDir, then rewrites
// the artifact's derived_paths to the new locations. It is repair-by-copy,
// never recompute.
//
// Each missing file is matched to a source by filename. When any missing file
// has no surviving source anywhere, Repair returns ErrStaleArtifact and
// leaves the row untouched; the caller then treats the cache entry as a miss
// and re-runs the upstream collaborators.
func (s *CacheService) Repair(ctx context.Context, scanID string, sourcePaths []string, destDir string) ([]string, error) {
	a, err := s.Lookup(ctx, scanID)
	if err != nil {
		return nil, err
	}

	sources := map[string]string{}
	for _, src := range sourcePaths {
		if info, err := os.Stat(src); err == nil && !info.IsDir() {
			sources[filepath.Base(src)] = src
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dest dir: %w", err)
	}

	newPaths := make([]string, 0, len(a.DerivedPaths))
	copied := 0
	for _, p := range a.DerivedPaths {
		if _, err := os.Stat(p); err == nil {
			newPaths = append(newPaths, p)
			continue
		}
		src, ok := sources[filepath.Base(p)]
		if !ok {
			s.Log.Warn().
				Str("scan_id", scanID).
				Str("path", p).
				Msg("artifact missing everywhere; repair impossible")
			return nil, ErrStaleArtifact
		}
		dst := filepath.Join(destDir, filepath.Base(p))
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copy %s: %w", src, err)
		}
		newPaths = append(newPaths, dst)
		copied++
	}

	if err := repo.UpdateDerivedPaths(ctx, s.DB, scanID, newPaths); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.Log.Info().
		Str("scan_id", scanID).
		Int("copied", copied).
		Str("dest", destDir).
		Msg("artifact repaired by copy")
	return newPaths, nil
}

// Invalidate drops the artifact's usability marker so the next Lookup misses
// and the pipeline recomputes. Returns ErrNotFound when no artifact row
// exists.
func (s *CacheService) Invalidate(ctx context.Context, scanID string) error {
	err := repo.InvalidateArtifact(ctx, s.DB, scanID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
