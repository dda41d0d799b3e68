// Package services – ListingService
//
// This file implements the listing synchronizer: a small state machine
// (draft → pending → listed | failed, failed → pending on retry) driven
// against the external marketplace. The ordering discipline is the core of
// it: a SKU is minted and its row persisted before any network call, so a
// crash between mint and submit leaves a recoverable draft rather than an
// orphaned external listing. Marketplace failures split into retryable
// (status stays pending, detail recorded, caller decides when to retry) and
// terminal (status becomes failed, detail preserved for the operator).
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/marketplace"
	"github.com/pverne/scanledger/internal/repo"
)

var (
	// submitOutcomes counts submission results by outcome for dashboards:
	// listed, failed_terminal, retryable, rejected_local.
	submitOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_submit_outcomes_total",
			Help: "Total listing submission attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(submitOutcomes)
}

// ListingMetadata is the user-approved payload for a draft.
type ListingMetadata struct {
	Title      string
	Price      float64
	Condition  string
	CategoryID int
}

// ListingService drives listing rows through their status lifecycle.
type ListingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Client submits listings to the marketplace.
	Client marketplace.Client
	// Taxonomy answers leaf-category checks before submission.
	Taxonomy marketplace.Taxonomy
	// SKUPrefix prefixes minted SKUs, e.g. "PC" → "PC-0001".
	SKUPrefix string
	// Log receives lifecycle events.
	Log zerolog.Logger
}

// CreateDraft mints a fresh, globally unique SKU and persists the listing
// record in status draft. No network call happens here; the external call
// belongs to Submit.
func (s *ListingService) CreateDraft(ctx context.Context, scanID, sessionID string, meta ListingMetadata) (*domain.Listing, error) {
	if strings.TrimSpace(meta.Title) == "" || meta.Price < 0 || meta.CategoryID <= 0 {
		return nil, ErrInvalidMetadata
	}
	if _, err := repo.GetScan(ctx, s.DB, scanID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sku, err := repo.NextSKU(ctx, s.DB, s.SKUPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	l := &domain.Listing{
		SKU:        sku,
		ScanID:     scanID,
		SessionID:  sessionID,
		Title:      meta.Title,
		Price:      meta.Price,
		Condition:  meta.Condition,
		CategoryID: meta.CategoryID,
	}
	if err := repo.CreateListing(ctx, s.DB, l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.Log.Info().Str("sku", sku).Str("scan_id", scanID).Msg("draft listing created")
	return l, nil
}

// SubmitOutcome reports the definite state a submission ended in. Callers
// always receive either this or a definite error class, never an ambiguous
// "maybe it worked".
type SubmitOutcome struct {
	Listing *domain.Listing
	// Retryable is set when the attempt failed transiently: status is
	// still pending and the same SKU may be resubmitted.
	Retryable bool
}

// Submit drives one submission attempt for an existing SKU.
//
// Transitions: draft|failed → pending, then pending → listed on success or
// pending → failed on terminal rejection; on a retryable failure the row
// stays pending with the detail recorded. Listed is terminal: submitting a
// listed SKU returns ErrListingTerminal.
//
// Preconditions: the category must be a leaf node. A parent category is
// rejected locally as ErrCategoryNotLeaf without spending the network call,
// because the marketplace's rejection would be deterministic.
//
// The external call is bounded by whatever deadline the caller set on ctx.
func (s *ListingService) Submit(ctx context.Context, sku string) (*SubmitOutcome, error) {
	l, err := repo.GetListing(ctx, s.DB, sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if l.Status == domain.StatusListed {
		return nil, ErrListingTerminal
	}

	leaf, err := s.Taxonomy.IsLeaf(ctx, l.CategoryID)
	if err != nil {
		if apiErr, ok := marketplace.AsAPIError(err); ok && apiErr.Retryable() {
			submitOutcomes.WithLabelValues("retryable").Inc()
			return nil, fmt.Errorf("category check: %w", err)
		}
		return nil, fmt.Errorf("category check: %w", err)
	}
	if !leaf {
		// A terminal, caller-side failure: record it so triage sees it.
		if err := repo.MarkPending(ctx, s.DB, sku); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		detail := fmt.Sprintf("category %d is not a leaf", l.CategoryID)
		if err := repo.MarkFailed(ctx, s.DB, sku, detail); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		submitOutcomes.WithLabelValues("rejected_local").Inc()
		s.Log.Warn().Str("sku", sku).Int("category_id", l.CategoryID).Msg("rejected locally: category not a leaf")
		return nil, ErrCategoryNotLeaf
	}

	if err := repo.MarkPending(ctx, s.DB, sku); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	artifact, _ := repo.GetUsableArtifact(ctx, s.DB, l.ScanID)
	sub := marketplace.Submission{
		SKU:        l.SKU,
		Title:      l.Title,
		Price:      l.Price,
		Condition:  l.Condition,
		CategoryID: l.CategoryID,
	}
	if artifact != nil {
		sub.ImageURLs = artifact.DerivedPaths
	}

	res, err := s.Client.Submit(ctx, sub)
	if err != nil {
		apiErr, ok := marketplace.AsAPIError(err)
		if ok && apiErr.Retryable() {
			if derr := repo.RecordTransientError(ctx, s.DB, sku, apiErr.Message); derr != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, derr)
			}
			submitOutcomes.WithLabelValues("retryable").Inc()
			s.Log.Warn().Str("sku", sku).Str("code", apiErr.Code).Msg("submission failed transiently; still pending")
			updated, _ := repo.GetListing(ctx, s.DB, sku)
			return &SubmitOutcome{Listing: updated, Retryable: true}, err
		}

		detail := err.Error()
		if ok {
			detail = apiErr.Message
		}
		if derr := repo.MarkFailed(ctx, s.DB, sku, detail); derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, derr)
		}
		submitOutcomes.WithLabelValues("failed_terminal").Inc()
		s.Log.Error().Str("sku", sku).Str("detail", detail).Msg("submission rejected permanently")
		updated, _ := repo.GetListing(ctx, s.DB, sku)
		return &SubmitOutcome{Listing: updated}, err
	}

	if err := repo.MarkListed(ctx, s.DB, sku, res.ItemID, res.AccountID, res.ListingURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	submitOutcomes.WithLabelValues("listed").Inc()
	s.Log.Info().Str("sku", sku).Str("item_id", res.ItemID).Msg("listed")

	updated, err := repo.GetListing(ctx, s.DB, sku)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &SubmitOutcome{Listing: updated}, nil
}

// CorrectMetadata rewrites the caller-correctable fields on a draft or failed
// listing. This is the operator's path after a terminal rejection: fix the
// metadata, then Submit the same SKU again.
func (s *ListingService) CorrectMetadata(ctx context.Context, sku string, meta ListingMetadata) error {
	if strings.TrimSpace(meta.Title) == "" || meta.Price < 0 || meta.CategoryID <= 0 {
		return ErrInvalidMetadata
	}
	err := repo.UpdateListingMetadata(ctx, s.DB, sku, meta.Title, meta.Price, meta.Condition, meta.CategoryID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Relist mints a fresh SKU for a new attempt on the same scan, carrying the
// old listing's metadata forward. Permitted only from failed or listed (an
// ended listing being re-listed); a draft or pending attempt should be
// submitted or corrected instead. The old SKU is never reused.
func (s *ListingService) Relist(ctx context.Context, sku string) (*domain.Listing, error) {
	old, err := repo.GetListing(ctx, s.DB, sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if old.Status != domain.StatusFailed && old.Status != domain.StatusListed {
		return nil, ErrListingNotRelistable
	}

	return s.CreateDraft(ctx, old.ScanID, old.SessionID, ListingMetadata{
		Title:      old.Title,
		Price:      old.Price,
		Condition:  old.Condition,
		CategoryID: old.CategoryID,
	})
}

// FailedListings returns all terminally failed listings with their error
// detail, newest first, for operator triage.
func (s *ListingService) FailedListings(ctx context.Context) ([]domain.Listing, error) {
	out, err := repo.ListFailedListings(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// StatusForScan returns the most recent listing attempt for a scan, or
// ErrNotFound when the scan was never listed.
func (s *ListingService) StatusForScan(ctx context.Context, scanID string) (*domain.Listing, error) {
	l, err := repo.LatestListingForScan(ctx, s.DB, scanID)
	switch {
	case err == nil:
		return l, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
