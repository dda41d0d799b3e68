package domain

import "time"

// ArtifactPatch is a partial ScanArtifact update. Only non-nil fields are
// written; everything else keeps its stored value. This lets the crop stage
// and the AI-extraction stage, running at different times and possibly in
// different sessions, contribute to the same artifact without coordinating.
type ArtifactPatch struct {
	CropGeometry *CropGeometry
	DerivedPaths *StringList
	Title        *string
	Description  *string
	Condition    *string
	Price        *float64
	Model        *string
	Country      *string
	Year         *int
	Denomination *string

	// ProcessedAt, when non-nil, marks the artifact usable: Lookup treats
	// rows with an unset last_processed_at as cache misses.
	ProcessedAt *time.Time
}

// Empty reports whether the patch carries no fields at all.
func (p ArtifactPatch) Empty() bool {
	return p.CropGeometry == nil && p.DerivedPaths == nil && p.Title == nil &&
		p.Description == nil && p.Condition == nil && p.Price == nil &&
		p.Model == nil && p.Country == nil && p.Year == nil &&
		p.Denomination == nil && p.ProcessedAt == nil
}

// Columns returns the column→value assignments for the set fields, suitable
// for a single UPDATE statement so a merge is atomic at the row level.
func (p ArtifactPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.CropGeometry != nil {
		cols["crop_geometry"] = *p.CropGeometry
	}
	if p.DerivedPaths != nil {
		cols["derived_paths"] = *p.DerivedPaths
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Condition != nil {
		cols["condition"] = *p.Condition
	}
	if p.Price != nil {
		cols["price"] = *p.Price
	}
	if p.Model != nil {
		cols["model"] = *p.Model
	}
	if p.Country != nil {
		cols["country"] = *p.Country
	}
	if p.Year != nil {
		cols["year"] = *p.Year
	}
	if p.Denomination != nil {
		cols["denomination"] = *p.Denomination
	}
	if p.ProcessedAt != nil {
		cols["last_processed_at"] = *p.ProcessedAt
	}
	return cols
}
