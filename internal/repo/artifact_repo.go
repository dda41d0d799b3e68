// Package repo implements the data persistence layer for domain records,
// backed by GORM. This file provides repository functions for the
// ScanArtifact model, including the field-level merge that lets independent
// processing stages write disjoint columns without clobbering each other.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
)

// GetArtifact fetches the artifact row for a scan, or ErrNotFound when no row
// exists. Callers deciding cache hit/miss must also treat a row with an unset
// LastProcessedAt as a miss; GetUsableArtifact folds that rule in.
func GetArtifact(ctx context.Context, db *gorm.DB, scanID string) (*domain.ScanArtifact, error) {
	var a domain.ScanArtifact
	err := db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetUsableArtifact fetches the artifact row for a scan and returns
// ErrNotFound both when no row exists and when the row has never been
// processed (last_processed_at IS NULL). The two cases are indistinguishable
// to callers on purpose: either way there is nothing usable yet.
func GetUsableArtifact(ctx context.Context, db *gorm.DB, scanID string) (*domain.ScanArtifact, error) {
	a, err := GetArtifact(ctx, db, scanID)
	if err != nil {
		return nil, err
	}
	if a.LastProcessedAt == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

// MergeArtifact upserts an artifact row with only the columns present in the
// patch. Existing columns absent from the patch keep their stored values.
//
// The update path is a single UPDATE statement, so concurrent merges touching
// disjoint fields are commutative and merges racing on the same field resolve
// by the store's row-level atomicity (last writer wins per field, never a
// torn row). When no row exists yet one is created inside the same
// transaction, so the insert-then-patch pair cannot interleave with another
// merge's insert.
func MergeArtifact(ctx context.Context, db *gorm.DB, scanID string, patch domain.ArtifactPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now().UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ScanArtifact
		err := tx.Where("scan_id = ?", scanID).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&domain.ScanArtifact{}).
				Where("scan_id = ?", scanID).
				Updates(cols).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := &domain.ScanArtifact{ScanID: scanID}
			if err := tx.Create(row).Error; err != nil {
				if IsDuplicate(err) {
					// Another merge created the row between our
					// lookup and insert; fall through to update.
					return tx.Model(&domain.ScanArtifact{}).
						Where("scan_id = ?", scanID).
						Updates(cols).Error
				}
				return err
			}
			return tx.Model(&domain.ScanArtifact{}).
				Where("scan_id = ?", scanID).
				Updates(cols).Error
		default:
			return err
		}
	})
}

// UpdateDerivedPaths overwrites only the derived_paths column. Used by
// repair-by-copy after relocating artifacts on disk.
func UpdateDerivedPaths(ctx context.Context, db *gorm.DB, scanID string, paths domain.StringList) error {
	res := db.WithContext(ctx).
		Model(&domain.ScanArtifact{}).
		Where("scan_id = ?", scanID).
		Updates(map[string]any{
			"derived_paths": paths,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// InvalidateArtifact clears last_processed_at so the next Lookup misses and
// the pipeline recomputes. The stored geometry and fields are kept for
// inspection; only the usability marker is dropped.
func InvalidateArtifact(ctx context.Context, db *gorm.DB, scanID string) error {
	res := db.WithContext(ctx).
		Model(&domain.ScanArtifact{}).
		Where("scan_id = ?", scanID).
		Updates(map[string]any{
			"last_processed_at": nil,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
