// Package repo implements the data persistence layer for domain records,
// backed by GORM. This file provides repository functions for Listing rows
// and SKU generation.
//
// Status writes are guarded UPDATEs: each mutation names the statuses it may
// transition from in its WHERE clause and reports ErrNotFound when zero rows
// match, so an illegal transition can never be written racing or not.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
)

// NextSKU mints the next SKU for a prefix, e.g. "PC-0001". The counter bump is
// a single upsert statement, so it begins life as a write and concurrent
// minters queue on SQLite's busy_timeout instead of colliding on a snapshot
// upgrade the way a read-then-update transaction would. RETURNING yields the
// post-bump value on both paths: a fresh row stores 2 after handing out 1,
// and an existing row returns next+1 after handing out next. The unique
// primary key on listings.sku backs the guarantee a second time.
func NextSKU(ctx context.Context, db *gorm.DB, prefix string) (string, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO sku_counters (prefix, next) VALUES (?, 2)
		 ON CONFLICT(prefix) DO UPDATE SET next = next + 1
		 RETURNING next`, prefix,
	).Scan(&next).Error
	if err != nil {
		return "", err
	}
	if next < 2 {
		return "", fmt.Errorf("sku counter for prefix %q returned %d", prefix, next)
	}
	return fmt.Sprintf("%s-%04d", prefix, next-1), nil
}

// CreateListing persists a draft row. The SKU must already be minted; the
// insert happens before any external call so a crash leaves a recoverable
// draft rather than an orphaned remote listing.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	now := time.Now().UTC()
	l.Status = domain.StatusDraft
	l.CreatedAt = now
	l.UpdatedAt = now
	return db.WithContext(ctx).Create(l).Error
}

// GetListing fetches a listing by SKU, or ErrNotFound.
func GetListing(ctx context.Context, db *gorm.DB, sku string) (*domain.Listing, error) {
	var l domain.Listing
	err := db.WithContext(ctx).
		Where("sku = ?", sku).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// MarkPending transitions draft|pending|failed → pending just before a
// submission attempt. Listed rows never match: listed is terminal.
func MarkPending(ctx context.Context, db *gorm.DB, sku string) error {
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("sku = ? AND status IN ?", sku, []domain.ListingStatus{
			domain.StatusDraft, domain.StatusPending, domain.StatusFailed,
		}).
		Updates(map[string]any{
			"status":     domain.StatusPending,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkListed transitions pending → listed with the external identifiers and
// sets listed_at. The guarded WHERE means a retry can never produce a second
// listed transition for the same SKU.
func MarkListed(ctx context.Context, db *gorm.DB, sku, externalItemID, externalAcctID, url string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("sku = ? AND status = ?", sku, domain.StatusPending).
		Updates(map[string]any{
			"status":              domain.StatusListed,
			"external_item_id":    externalItemID,
			"external_account_id": externalAcctID,
			"listing_url":         url,
			"error_detail":        nil,
			"listed_at":           now,
			"updated_at":          now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkFailed transitions pending → failed recording the terminal detail for
// operator review.
func MarkFailed(ctx context.Context, db *gorm.DB, sku, detail string) error {
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("sku = ? AND status = ?", sku, domain.StatusPending).
		Updates(map[string]any{
			"status":       domain.StatusFailed,
			"error_detail": detail,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordTransientError leaves status pending and stores the retryable error
// detail so the state is never an ambiguous "maybe it worked".
func RecordTransientError(ctx context.Context, db *gorm.DB, sku, detail string) error {
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("sku = ? AND status = ?", sku, domain.StatusPending).
		Updates(map[string]any{
			"error_detail": detail,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateListingMetadata rewrites the caller-correctable fields on a draft or
// failed listing before a fresh submit. Pending and listed rows reject the
// edit.
func UpdateListingMetadata(ctx context.Context, db *gorm.DB, sku, title string, price float64, condition string, categoryID int) error {
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("sku = ? AND status IN ?", sku, []domain.ListingStatus{
			domain.StatusDraft, domain.StatusFailed,
		}).
		Updates(map[string]any{
			"title":       title,
			"price":       price,
			"condition":   condition,
			"category_id": categoryID,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListFailedListings returns all failed listings with their error detail,
// newest first. This is the operator triage view.
func ListFailedListings(ctx context.Context, db *gorm.DB) ([]domain.Listing, error) {
	var out []domain.Listing
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusFailed).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// LatestListingForScan returns the most recent listing attempt for a scan, or
// ErrNotFound when the scan was never listed.
func LatestListingForScan(ctx context.Context, db *gorm.DB, scanID string) (*domain.Listing, error) {
	var l domain.Listing
	err := db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		Order("created_at desc").
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}
