package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pverne/scanledger/internal/domain"
)

func newScanRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("scan_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateScan_Error_NoTable(t *testing.T) {
	db := newScanRepoDB(t /* no migrations */)
	scan, err := CreateScan(context.Background(), db, "fp", domain.KindFace, "a.jpg", 10, 0, 0)
	if err == nil || scan != nil {
		t.Fatalf("expected error creating without table, got scan=%v err=%v", scan, err)
	}
}

func TestCreateScan_Success_PersistsAndSetsFields(t *testing.T) {
	db := newScanRepoDB(t, &domain.Scan{})

	start := time.Now().UTC().Add(-time.Minute)
	scan, err := CreateScan(context.Background(), db, "fp-1", domain.KindFace, "sheet.jpg", 2048, 1200, 900)
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if _, err := uuid.Parse(scan.ID); err != nil {
		t.Fatalf("scan ID is not a UUID: %q", scan.ID)
	}
	if scan.Fingerprint != "fp-1" || scan.Kind != domain.KindFace || scan.Filename != "sheet.jpg" {
		t.Fatalf("unexpected Scan fields: %+v", scan)
	}
	if scan.ByteSize != 2048 || scan.Width != 1200 || scan.Height != 900 {
		t.Fatalf("unexpected size fields: %+v", scan)
	}
	if scan.UseCount != 1 {
		t.Fatalf("UseCount = %d, want 1 on first sight", scan.UseCount)
	}
	if scan.FirstSeenAt.Before(start) {
		t.Fatalf("FirstSeenAt seems unset: %v", scan.FirstSeenAt)
	}

	// round-trip
	var got domain.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("load created scan: %v", err)
	}
	if got.Fingerprint != "fp-1" || got.UseCount != 1 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateScan_DuplicateFingerprint(t *testing.T) {
	db := newScanRepoDB(t, &domain.Scan{})

	if _, err := CreateScan(context.Background(), db, "same", domain.KindFace, "a.jpg", 1, 0, 0); err != nil {
		t.Fatalf("first CreateScan: %v", err)
	}
	_, err := CreateScan(context.Background(), db, "same", domain.KindVerso, "b.jpg", 2, 0, 0)
	if !errors.Is(err, ErrDuplicateFingerprint) {
		t.Fatalf("second CreateScan err = %v, want ErrDuplicateFingerprint", err)
	}

	var count int64
	if err := db.Model(&domain.Scan{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("scan rows = %d, want exactly 1 per fingerprint", count)
	}
}

func TestFindScanByFingerprint(t *testing.T) {
	db := newScanRepoDB(t, &domain.Scan{})

	created, err := CreateScan(context.Background(), db, "findme", domain.KindLot, "l.jpg", 5, 0, 0)
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	got, err := FindScanByFingerprint(context.Background(), db, "findme")
	if err != nil {
		t.Fatalf("FindScanByFingerprint: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("found %q, want %q", got.ID, created.ID)
	}

	if _, err := FindScanByFingerprint(context.Background(), db, "absent"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("missing fingerprint err = %v, want ErrRecordNotFound", err)
	}
}

func TestTouchScan_IncrementsUseCount(t *testing.T) {
	db := newScanRepoDB(t, &domain.Scan{})

	scan, err := CreateScan(context.Background(), db, "fp", domain.KindFace, "a.jpg", 1, 0, 0)
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	if err := TouchScan(context.Background(), db, scan.ID); err != nil {
		t.Fatalf("TouchScan: %v", err)
	}
	if err := TouchScan(context.Background(), db, scan.ID); err != nil {
		t.Fatalf("TouchScan again: %v", err)
	}

	var got domain.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.UseCount != 3 {
		t.Fatalf("UseCount = %d, want 3 after two touches", got.UseCount)
	}
	if !got.LastTouchedAt.After(got.FirstSeenAt.Add(-time.Second)) {
		t.Fatalf("LastTouchedAt not refreshed: %v", got.LastTouchedAt)
	}
}

func TestTouchScan_NotFound(t *testing.T) {
	db := newScanRepoDB(t, &domain.Scan{})
	err := TouchScan(context.Background(), db, uuid.NewString())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestListUnlistedScans(t *testing.T) {
	db := newScanRepoDB(t, &domain.Scan{}, &domain.ScanArtifact{}, &domain.Listing{})
	ctx := context.Background()

	// processed + unlisted → should appear
	ready, err := CreateScan(ctx, db, "fp-ready", domain.KindFace, "r.jpg", 1, 0, 0)
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	now := time.Now().UTC()
	if err := MergeArtifact(ctx, db, ready.ID, domain.ArtifactPatch{ProcessedAt: &now}); err != nil {
		t.Fatalf("MergeArtifact: %v", err)
	}

	// processed + listed → should not appear
	listed, err := CreateScan(ctx, db, "fp-listed", domain.KindFace, "l.jpg", 1, 0, 0)
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if err := MergeArtifact(ctx, db, listed.ID, domain.ArtifactPatch{ProcessedAt: &now}); err != nil {
		t.Fatalf("MergeArtifact: %v", err)
	}
	if err := CreateListing(ctx, db, &domain.Listing{
		SKU: "PC-9999", ScanID: listed.ID, SessionID: "s1",
		Title: "t", Price: 1, CategoryID: 1,
	}); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	// never processed → should not appear
	if _, err := CreateScan(ctx, db, "fp-raw", domain.KindVerso, "raw.jpg", 1, 0, 0); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	got, err := ListUnlistedScans(ctx, db)
	if err != nil {
		t.Fatalf("ListUnlistedScans: %v", err)
	}
	if len(got) != 1 || got[0].ID != ready.ID {
		t.Fatalf("unlisted = %+v, want only %s", got, ready.ID)
	}
}
