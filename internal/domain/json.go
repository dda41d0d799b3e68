// JSON-backed column types.
//
// The crop geometry, derived path list, and activity details are structured
// values stored in TEXT columns. Instead of ad hoc serialized blobs, each
// carries an explicit serialization contract: CropGeometry embeds a schema
// version so future field additions stay additive and decodable, and all
// three implement driver.Valuer / sql.Scanner so GORM round-trips them
// without convention-based helpers.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CropGeometrySchemaVersion is written into every persisted geometry. Readers
// accept any version up to this one; unknown newer versions are rejected at
// scan time rather than silently misdecoded.
const CropGeometrySchemaVersion = 1

// CropGeometry holds the detected grid layout of a scanned sheet: the
// complete, ordered horizontal and vertical cut positions (always including
// the 0 and width/height edges) plus the row/column counts they imply.
type CropGeometry struct {
	SchemaVersion int   `json:"schema_version"`
	Rows          int   `json:"rows"`
	Cols          int   `json:"cols"`
	HBoundaries   []int `json:"h_boundaries"`
	VBoundaries   []int `json:"v_boundaries"`
}

// Value implements driver.Valuer, stamping the current schema version.
func (g CropGeometry) Value() (driver.Value, error) {
	g.SchemaVersion = CropGeometrySchemaVersion
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (g *CropGeometry) Scan(src any) error {
	b, err := asBytes(src)
	if err != nil {
		return fmt.Errorf("crop geometry: %w", err)
	}
	if len(b) == 0 {
		*g = CropGeometry{}
		return nil
	}
	var decoded CropGeometry
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("crop geometry: %w", err)
	}
	if decoded.SchemaVersion > CropGeometrySchemaVersion {
		return fmt.Errorf("crop geometry: unsupported schema version %d", decoded.SchemaVersion)
	}
	*g = decoded
	return nil
}

// StringList is an ordered list of filesystem paths stored as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	b, err := asBytes(src)
	if err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	*l = out
	return nil
}

// Details is the free-form structured payload attached to an activity record,
// e.g. {"source_session": "S1"} on a reused entry.
type Details map[string]any

// Value implements driver.Valuer.
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *Details) Scan(src any) error {
	b, err := asBytes(src)
	if err != nil {
		return fmt.Errorf("details: %w", err)
	}
	if len(b) == 0 {
		*d = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("details: %w", err)
	}
	*d = out
	return nil
}

// asBytes normalizes the driver value (sqlite hands back TEXT as string or
// []byte depending on the path taken) into a byte slice.
func asBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
}
