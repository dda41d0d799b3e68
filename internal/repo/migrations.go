// Schema migrations.
//
// The schema evolves through an ordered ledger of named, idempotent steps.
// Each applied step is recorded once in schema_migrations, so Migrate can be
// run on every start: already-applied steps are skipped, new steps run in
// order inside a transaction. This replaces any "try a write, catch the
// constraint error, rebuild the table" probing; the ledger is the single
// source of truth for what the schema looks like.
package repo

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pverne/scanledger/internal/domain"
)

// schemaMigration records one applied migration step.
type schemaMigration struct {
	Name      string    `gorm:"type:varchar(128);primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

// migrationStep is one named, ordered schema change.
type migrationStep struct {
	name string
	run  func(tx *gorm.DB) error
}

// migrations is the ordered ledger. Append only; never reorder or edit an
// applied step; add a new one instead.
var migrations = []migrationStep{
	{
		name: "0001_create_scans",
		run: func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(&domain.Scan{})
		},
	},
	{
		name: "0002_create_scan_artifacts",
		run: func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(&domain.ScanArtifact{})
		},
	},
	{
		name: "0003_create_activity_records",
		run: func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(&domain.ActivityRecord{})
		},
	},
	{
		name: "0004_create_listings",
		run: func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(&domain.Listing{})
		},
	},
	{
		name: "0005_create_sku_counters",
		run: func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(&domain.SKUCounter{})
		},
	},
}

// Migrate applies all pending migration steps in order. It is safe to call on
// every process start.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("migration ledger: %w", err)
	}

	for _, step := range migrations {
		var applied int64
		if err := db.Model(&schemaMigration{}).
			Where("name = ?", step.name).
			Count(&applied).Error; err != nil {
			return fmt.Errorf("migration %s: %w", step.name, err)
		}
		if applied > 0 {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.run(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{
				Name:      step.name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", step.name, err)
		}
	}
	return nil
}

// AppliedMigrations returns the names of all recorded steps, ordered by name.
func AppliedMigrations(db *gorm.DB) ([]string, error) {
	var rows []schemaMigration
	if err := db.Order("name asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out, nil
}
