// Package domain defines the persistence models for scans, processing
// artifacts, session activity, and marketplace listings. These types are
// mapped with GORM and form the core data layer of the application.
package domain

import "time"

// ScanKind describes what a scanned image depicts. It is a label supplied by
// the uploader and does not participate in identity: the same bytes resolve
// to the same Scan even when callers disagree about the kind.
type ScanKind string

const (
	KindFace     ScanKind = "face"
	KindVerso    ScanKind = "verso"
	KindCombined ScanKind = "combined"
	KindLot      ScanKind = "lot"
)

// Valid reports whether k is one of the known scan kinds.
func (k ScanKind) Valid() bool {
	switch k {
	case KindFace, KindVerso, KindCombined, KindLot:
		return true
	}
	return false
}

// Scan is the identity record for one unique image's content, independent of
// filename or upload session. Re-uploads of identical bytes resolve to the
// existing row and bump UseCount.
//
// Fields:
//   - ID: surrogate UUID primary key (char(36)), assigned on first sight.
//   - Fingerprint: sha256 hex of the raw file bytes; unique across all scans.
//   - Kind: what the image depicts (face/verso/combined/lot).
//   - Filename / ByteSize / Width / Height: metadata from the first upload.
//   - UseCount: number of times this fingerprint has been seen.
//   - FirstSeenAt / LastTouchedAt: identity lifecycle timestamps.
type Scan struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	Fingerprint   string    `json:"fingerprint"    gorm:"type:char(64);not null;uniqueIndex:ux_scans_fingerprint"`
	Kind          ScanKind  `json:"kind"           gorm:"type:varchar(16);not null;check:kind IN ('face','verso','combined','lot')"`
	Filename      string    `json:"filename"       gorm:"type:varchar(255);not null"`
	ByteSize      int64     `json:"byte_size"      gorm:"not null"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	UseCount      int64     `json:"use_count"      gorm:"not null;default:1"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastTouchedAt time.Time `json:"last_touched_at"`
}

// TableName returns the database table name for Scan.
func (Scan) TableName() string { return "scans" }

// ScanArtifact caches the derived outputs of processing one Scan: detected
// crop geometry, the extracted sub-image paths, and AI-extracted listing
// fields. At most one row exists per scan and it is created lazily; a Scan
// with no artifact row (or an artifact whose LastProcessedAt is unset) has
// simply not been processed yet.
//
// All extracted fields are pointers so that "never extracted" (nil) stays
// distinguishable from legitimate zero values: a price of 0 is data, a nil
// price is absence. Updates are merges: writers supply only the columns they
// produced and previously stored columns survive.
type ScanArtifact struct {
	ScanID          string        `json:"scan_id"         gorm:"type:char(36);primaryKey"`
	CropGeometry    *CropGeometry `json:"crop_geometry,omitempty" gorm:"type:text"`
	DerivedPaths    StringList    `json:"derived_paths,omitempty" gorm:"type:text"`
	Title           *string       `json:"title,omitempty"         gorm:"type:varchar(255)"`
	Description     *string       `json:"description,omitempty"   gorm:"type:text"`
	Condition       *string       `json:"condition,omitempty"     gorm:"type:varchar(64)"`
	Price           *float64      `json:"price,omitempty"`
	Model           *string       `json:"model,omitempty"         gorm:"type:varchar(128)"`
	Country         *string       `json:"country,omitempty"       gorm:"type:varchar(64)"`
	Year            *int          `json:"year,omitempty"`
	Denomination    *string       `json:"denomination,omitempty"  gorm:"type:varchar(64)"`
	LastProcessedAt *time.Time    `json:"last_processed_at,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`

	// Scan is the owning identity row. Artifacts are cascade-deleted if
	// their scan is removed.
	Scan Scan `json:"-" gorm:"foreignKey:ScanID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ScanArtifact.
func (ScanArtifact) TableName() string { return "scan_artifacts" }

// Action enumerates the kinds of work a session can record against a scan.
type Action string

const (
	ActionUploaded  Action = "uploaded"
	ActionProcessed Action = "processed"
	ActionReused    Action = "reused"
	ActionCombined  Action = "combined"
	ActionListed    Action = "listed"
)

// Valid reports whether a is one of the known activity actions.
func (a Action) Valid() bool {
	switch a {
	case ActionUploaded, ActionProcessed, ActionReused, ActionCombined, ActionListed:
		return true
	}
	return false
}

// ActivityRecord is one append-only audit entry: in session SessionID, Action
// happened to ScanID. Records are never updated or deleted; the complete
// history of a session is reconstructable from its records alone. The log
// reflects attempts, not guaranteed outcomes: an entry stands even when the
// caller's subsequent step failed.
type ActivityRecord struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:varchar(64);not null;index:idx_activity_session,priority:1"`
	ScanID    string    `json:"scan_id"    gorm:"type:char(36);not null;index"`
	Action    Action    `json:"action"     gorm:"type:varchar(16);not null;check:action IN ('uploaded','processed','reused','combined','listed')"`
	Details   Details   `json:"details,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_activity_session,priority:2"`
}

// TableName returns the database table name for ActivityRecord.
func (ActivityRecord) TableName() string { return "activity_records" }

// ListingStatus is the synchronization state of one listing attempt.
type ListingStatus string

const (
	// StatusDraft means the SKU is minted and the record persisted but no
	// external call has been made yet. A crash here leaves a recoverable
	// local record, never an orphaned external listing.
	StatusDraft ListingStatus = "draft"
	// StatusPending means a submission is in flight or failed in a
	// retryable way; the same SKU may be resubmitted.
	StatusPending ListingStatus = "pending"
	// StatusListed is terminal: the marketplace accepted the listing.
	StatusListed ListingStatus = "listed"
	// StatusFailed means the marketplace rejected the submission
	// permanently; metadata must be corrected before a fresh submit.
	StatusFailed ListingStatus = "failed"
)

// Listing is one synchronization attempt of a scan against the external
// marketplace. A scan may be listed more than once across accounts or after
// an ended listing, each attempt under its own immutable SKU.
//
// The SKU is minted and the row persisted before any network call. Retries of
// the same attempt reuse the same SKU; a fresh attempt after permanent
// failure mints a new one. A SKU is never reassigned.
type Listing struct {
	SKU            string        `json:"sku"        gorm:"type:varchar(32);primaryKey"`
	ScanID         string        `json:"scan_id"    gorm:"type:char(36);not null;index"`
	SessionID      string        `json:"session_id" gorm:"type:varchar(64);not null"`
	Status         ListingStatus `json:"status"     gorm:"type:varchar(16);not null;check:status IN ('draft','pending','listed','failed')"`
	Title          string        `json:"title"      gorm:"type:varchar(255);not null"`
	Price          float64       `json:"price"      gorm:"not null"`
	Condition      string        `json:"condition"  gorm:"type:varchar(64)"`
	CategoryID     int           `json:"category_id" gorm:"not null"`
	ExternalItemID *string       `json:"external_item_id,omitempty"    gorm:"type:varchar(64)"`
	ExternalAcctID *string       `json:"external_account_id,omitempty" gorm:"type:varchar(64)"`
	ListingURL     *string       `json:"listing_url,omitempty"         gorm:"type:varchar(512)"`
	ErrorDetail    *string       `json:"error_detail,omitempty"        gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at"`
	ListedAt       *time.Time    `json:"listed_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Scan Scan `json:"-" gorm:"foreignKey:ScanID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string { return "listings" }

// SKUCounter backs SKU generation: one row per prefix holding the next
// sequence number. The row is bumped inside a transaction so concurrent
// drafts never mint the same SKU.
type SKUCounter struct {
	Prefix string `gorm:"type:varchar(8);primaryKey"`
	Next   int64  `gorm:"not null;default:1"`
}

// TableName returns the database table name for SKUCounter.
func (SKUCounter) TableName() string { return "sku_counters" }
