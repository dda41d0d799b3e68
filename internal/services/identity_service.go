// Package services – IdentityService
//
// This file implements the content identity resolver. Uploaded image bytes
// are fingerprinted with sha256 and resolved to a stable scan row: first
// sight inserts, every later sight of the same bytes bumps the use counter on
// the existing row. Identity is content-only: the caller's stated kind never
// forks it. Two concurrent resolves of the same bytes are arbitrated by the
// unique index on fingerprint: the loser's insert comes back as a duplicate
// and is retried as a lookup, so at most one row ever exists per fingerprint.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/repo"
)

// IdentityService resolves uploaded bytes to scan identities.
type IdentityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Log receives anomaly reports (kind mismatches, conflict retries).
	Log zerolog.Logger
}

// ResolveResult reports the outcome of one resolve call.
type ResolveResult struct {
	Scan *domain.Scan
	// Created is true when this call saw the fingerprint for the first
	// time and inserted the row.
	Created bool
}

// Fingerprint returns the hex sha256 of the raw bytes. Deterministic, and the
// collision rate is negligible at this hash width; nothing else about the
// algorithm is load-bearing.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Resolve maps image bytes to a scan id, inserting on first sight.
//
// Semantics:
//   - Identical bytes always resolve to the same scan, across sessions,
//     filenames, and users. The second and later sights increment use_count
//     and refresh last_touched_at in a single row mutation.
//   - A kind disagreeing with the stored row is a caller bug surfaced via a
//     warning log, never a reason to fork identity or rewrite the stored
//     kind.
//   - Datastore failure surfaces as ErrStoreUnavailable; a fabricated id is
//     never returned.
func (s *IdentityService) Resolve(ctx context.Context, data []byte, kind domain.ScanKind, filename string, width, height int) (*ResolveResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	fp := Fingerprint(data)

	existing, err := repo.FindScanByFingerprint(ctx, s.DB, fp)
	switch {
	case err == nil:
		return s.touch(ctx, existing, kind)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	created, err := repo.CreateScan(ctx, s.DB, fp, kind, filename, int64(len(data)), width, height)
	switch {
	case err == nil:
		return &ResolveResult{Scan: created, Created: true}, nil
	case errors.Is(err, repo.ErrDuplicateFingerprint):
		// Lost the race: a concurrent resolve of the same bytes inserted
		// first. The constraint guarantees exactly one winner, so the
		// retry lookup must succeed.
		s.Log.Debug().Str("fingerprint", fp).Msg("identity conflict, retrying as lookup")
		winner, lerr := repo.FindScanByFingerprint(ctx, s.DB, fp)
		if lerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lerr)
		}
		return s.touch(ctx, winner, kind)
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Get fetches a scan row by id.
func (s *IdentityService) Get(ctx context.Context, scanID string) (*domain.Scan, error) {
	scan, err := repo.GetScan(ctx, s.DB, scanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return scan, nil
}

// Unlisted returns scans that carry a usable artifact but no listing yet, the
// backlog view an operator works through.
func (s *IdentityService) Unlisted(ctx context.Context) ([]domain.Scan, error) {
	scans, err := repo.ListUnlistedScans(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return scans, nil
}

// touch bumps the use counter on an existing row and reports kind divergence.
func (s *IdentityService) touch(ctx context.Context, scan *domain.Scan, kind domain.ScanKind) (*ResolveResult, error) {
	if scan.Kind != kind {
		s.Log.Warn().
			Str("scan_id", scan.ID).
			Str("stored_kind", string(scan.Kind)).
			Str("claimed_kind", string(kind)).
			Msg("kind mismatch on resolve; identity is content-only")
	}
	if err := repo.TouchScan(ctx, s.DB, scan.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	scan.UseCount++
	return &ResolveResult{Scan: scan, Created: false}, nil
}
