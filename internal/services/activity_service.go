// Package services – ActivityService
//
// This file implements the session activity log. Appends are fire-and-stand:
// once written, an entry is never retried, rolled back, or rewritten, even
// when the caller's subsequent step fails. The log records attempts, which
// is exactly what makes it the right place to diagnose partial failures.
package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/repo"
)

// ActivityService appends to and reads the append-only session audit trail.
type ActivityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Append records one action against a scan in a session.
//
// Validation:
//   - sessionID and scanID must be non-blank.
//   - action must be a known action.
//   - a reused action must carry source_session and source_scan_id in its
//     details, so audits can trace where cached work came from.
func (s *ActivityService) Append(ctx context.Context, sessionID, scanID string, action domain.Action, details domain.Details) (*domain.ActivityRecord, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(scanID) == "" {
		return nil, ErrInvalidAction
	}
	if !action.Valid() {
		return nil, ErrInvalidAction
	}
	if action == domain.ActionReused {
		if details == nil || details["source_session"] == nil || details["source_scan_id"] == nil {
			return nil, fmt.Errorf("%w: reused requires source_session and source_scan_id", ErrInvalidAction)
		}
	}

	rec, err := repo.AppendActivity(ctx, s.DB, sessionID, scanID, action, details)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

// History returns the full record of a session, ordered by timestamp
// ascending. Repeated calls return identical results until a new append.
func (s *ActivityService) History(ctx context.Context, sessionID string) ([]domain.ActivityRecord, error) {
	out, err := repo.SessionHistory(ctx, s.DB, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// ScanHistory returns every record touching a scan across all sessions.
func (s *ActivityService) ScanHistory(ctx context.Context, scanID string) ([]domain.ActivityRecord, error) {
	out, err := repo.ScanHistory(ctx, s.DB, scanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}
