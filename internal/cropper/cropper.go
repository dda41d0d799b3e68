// Package cropper defines the grid-extraction collaborator at its interface.
// The geometric work (contour detection, cutting, face/verso composition) is
// an external concern; the core consumes its outputs and caches them. What
// does live here is boundary normalization, because operator-supplied or
// detector-supplied cut positions must be cleaned before they are persisted
// as crop geometry.
package cropper

import (
	"context"
	"sort"

	"github.com/pverne/scanledger/internal/domain"
)

// GridLayout is the result of grid detection on a sheet scan: the complete
// boundary lists (always including the 0 and width/height edges) and the
// row/column counts they imply.
type GridLayout struct {
	Rows        int
	Cols        int
	HBoundaries []int
	VBoundaries []int
	Width       int
	Height      int
}

// Geometry converts the layout into the persisted crop geometry form.
func (g GridLayout) Geometry() domain.CropGeometry {
	return domain.CropGeometry{
		Rows:        g.Rows,
		Cols:        g.Cols,
		HBoundaries: g.HBoundaries,
		VBoundaries: g.VBoundaries,
	}
}

// CombineResult holds the outputs of face/verso composition: one lot image
// per column plus one combined image per grid position.
type CombineResult struct {
	LotPaths      []string
	CombinedPaths []string
}

// Cropper performs grid detection, cutting, and face/verso composition.
// All methods are pure with respect to the cache: they read and write image
// files but never touch stored artifacts.
type Cropper interface {
	// DetectGrid analyzes the sheet image and proposes a grid layout.
	DetectGrid(ctx context.Context, imagePath string) (GridLayout, error)

	// Crop cuts the sheet along the geometry's boundaries and writes one
	// file per cell into outDir, returning the paths in row-major order.
	Crop(ctx context.Context, imagePath string, geom domain.CropGeometry, outDir string) ([]string, error)

	// Combine pairs face and verso crops by grid position and writes lot
	// images (per column) and combined images (per position) into outDir.
	Combine(ctx context.Context, faceDir, versoDir, outDir string) (CombineResult, error)
}

// CleanBoundaries sorts and deduplicates cut positions, drops values within
// edgeFrac of either edge, and enforces a minimum spacing between neighbors.
// The surviving internal positions are returned with the 0 and extent edges
// re-attached, ready to persist.
func CleanBoundaries(positions []int, extent int, minDistance int, edgeFrac float64) []int {
	if extent <= 0 {
		return nil
	}
	if minDistance <= 0 {
		minDistance = 1
	}

	lo := int(float64(extent) * edgeFrac)
	hi := extent - lo

	seen := map[int]struct{}{}
	var internal []int
	for _, p := range positions {
		if p <= lo || p >= hi {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		internal = append(internal, p)
	}
	sort.Ints(internal)

	var kept []int
	for _, p := range internal {
		if len(kept) == 0 || p-kept[len(kept)-1] >= minDistance {
			kept = append(kept, p)
		}
	}

	out := make([]int, 0, len(kept)+2)
	out = append(out, 0)
	out = append(out, kept...)
	out = append(out, extent)
	return out
}
