// Package repo implements the data persistence layer for domain records,
// backed by GORM. This file provides repository functions for the append-only
// activity log. There is deliberately no update or delete here: the log is
// immutable by construction and nothing in this package can rewrite history.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
)

// AppendActivity inserts one audit entry. The row id is a fresh UUID and
// CreatedAt is set to UTC now.
func AppendActivity(ctx context.Context, db *gorm.DB, sessionID, scanID string, action domain.Action, details domain.Details) (*domain.ActivityRecord, error) {
	rec := &domain.ActivityRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ScanID:    scanID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// SessionHistory returns all records for a session ordered by timestamp
// ascending (insertion id breaks ties so repeated calls return an identical
// order). It returns an empty slice for an unknown session.
func SessionHistory(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.ActivityRecord, error) {
	var out []domain.ActivityRecord
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ScanHistory returns all records touching a scan across every session,
// ordered ascending. Used by the audit view to answer "where did this cached
// work come from".
func ScanHistory(ctx context.Context, db *gorm.DB, scanID string) ([]domain.ActivityRecord, error) {
	var out []domain.ActivityRecord
	err := db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}
