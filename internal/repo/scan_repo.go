// Package repo implements the data persistence layer for domain records,
// backed by GORM. This file provides repository functions for the Scan model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a scan is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - CreateScan returns ErrDuplicateFingerprint when the unique index on
//     fingerprint rejects the insert; the caller retries as a lookup.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
)

// ErrDuplicateFingerprint indicates that a scan row with the same content
// fingerprint already exists. Two concurrent resolves of the same bytes race
// to this constraint; the loser retries as a lookup.
var ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

// CreateScan inserts a new Scan row with a UUID primary key, UseCount 1, and
// UTC timestamps. The unique index on fingerprint is the arbiter of identity:
// on violation it returns ErrDuplicateFingerprint.
func CreateScan(ctx context.Context, db *gorm.DB, fingerprint string, kind domain.ScanKind, filename string, byteSize int64, width, height int) (*domain.Scan, error) {
	now := time.Now().UTC()
	s := &domain.Scan{
		ID:            uuid.NewString(),
		Fingerprint:   fingerprint,
		Kind:          kind,
		Filename:      filename,
		ByteSize:      byteSize,
		Width:         width,
		Height:        height,
		UseCount:      1,
		FirstSeenAt:   now,
		LastTouchedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicateFingerprint
		}
		return nil, err
	}
	return s, nil
}

// FindScanByFingerprint fetches the scan identified by a content fingerprint,
// or ErrNotFound when no such scan exists.
func FindScanByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.Scan, error) {
	var s domain.Scan
	err := db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetScan fetches a scan by its surrogate id, or ErrNotFound.
func GetScan(ctx context.Context, db *gorm.DB, id string) (*domain.Scan, error) {
	var s domain.Scan
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TouchScan increments use_count and refreshes last_touched_at in a single
// UPDATE, so concurrent touches never lose an increment. Returns ErrNotFound
// when the scan does not exist.
func TouchScan(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"use_count":       gorm.Expr("use_count + 1"),
			"last_touched_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListUnlistedScans returns scans that have a usable cached artifact but no
// listing record at all, ordered by last touch descending. This feeds the
// "ready to list" operator view.
func ListUnlistedScans(ctx context.Context, db *gorm.DB) ([]domain.Scan, error) {
	var out []domain.Scan
	err := db.WithContext(ctx).
		Joins("JOIN scan_artifacts ON scan_artifacts.scan_id = scans.id AND scan_artifacts.last_processed_at IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM listings WHERE listings.scan_id = scans.id)").
		Order("scans.last_touched_at desc").
		Find(&out).Error
	return out, err
}
