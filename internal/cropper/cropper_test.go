package cropper

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/pverne/scanledger/internal/domain"
)

func TestCleanBoundaries(t *testing.T) {
	cases := []struct {
		name        string
		positions   []int
		extent      int
		minDistance int
		want        []int
	}{
		{
			name:      "dedupes and sorts",
			positions: []int{100, 50, 50},
			extent:    200, minDistance: 10,
			want: []int{0, 50, 100, 200},
		},
		{
			name:      "drops positions near the edges",
			positions: []int{5, 100, 195},
			extent:    200, minDistance: 10,
			want: []int{0, 100, 200},
		},
		{
			name:      "enforces minimum spacing",
			positions: []int{50, 55, 120},
			extent:    200, minDistance: 20,
			want: []int{0, 50, 120, 200},
		},
		{
			name:      "no internal positions still yields the edges",
			positions: nil,
			extent:    200, minDistance: 10,
			want: []int{0, 200},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CleanBoundaries(tc.positions, tc.extent, tc.minDistance, 0.05)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestCleanBoundaries_ZeroExtent(t *testing.T) {
	if got := CleanBoundaries([]int{10}, 0, 5, 0.05); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

// syntheticSheet renders a white sheet with a 2x2 grid of dark cards separated
// by bright gap bands, the layout the luminance detector is built for.
func syntheticSheet(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	white := color.RGBA{255, 255, 255, 255}
	dark := color.RGBA{30, 30, 30, 255}
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, white)
		}
	}
	cardBand := func(v int) bool {
		return (v >= 20 && v < 90) || (v >= 110 && v < 180)
	}
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			if cardBand(x) && cardBand(y) {
				img.Set(x, y, dark)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "sheet.jpg")
	if err := saveJPEG(path, img); err != nil {
		t.Fatalf("save sheet: %v", err)
	}
	return path
}

func TestDetectGrid_FindsTwoByTwo(t *testing.T) {
	lc := NewLumaCropper()
	sheet := syntheticSheet(t)

	layout, err := lc.DetectGrid(context.Background(), sheet)
	if err != nil {
		t.Fatalf("DetectGrid: %v", err)
	}
	if layout.Rows != 2 || layout.Cols != 2 {
		t.Fatalf("grid = %dx%d, want 2x2 (h=%v v=%v)", layout.Rows, layout.Cols, layout.HBoundaries, layout.VBoundaries)
	}
	if layout.HBoundaries[0] != 0 || layout.HBoundaries[len(layout.HBoundaries)-1] != 200 {
		t.Fatalf("h boundaries missing edges: %v", layout.HBoundaries)
	}
	// The internal cut falls in the gap band between the cards.
	cut := layout.HBoundaries[1]
	if cut < 90 || cut > 110 {
		t.Fatalf("internal cut = %d, want within the 90..110 gap", cut)
	}
}

func TestCrop_WritesRowMajorCells(t *testing.T) {
	lc := NewLumaCropper()
	sheet := syntheticSheet(t)
	outDir := filepath.Join(t.TempDir(), "crops")

	geom := domain.CropGeometry{
		Rows: 2, Cols: 2,
		HBoundaries: []int{0, 100, 200},
		VBoundaries: []int{0, 100, 200},
	}
	paths, err := lc.Crop(context.Background(), sheet, geom, outDir)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	want := []string{
		"crop_row0_col0.jpg", "crop_row0_col1.jpg",
		"crop_row1_col0.jpg", "crop_row1_col1.jpg",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i, name := range want {
		if filepath.Base(paths[i]) != name {
			t.Fatalf("paths[%d] = %s, want %s", i, paths[i], name)
		}
		cell, err := loadImage(paths[i])
		if err != nil {
			t.Fatalf("load cell: %v", err)
		}
		if cell.Bounds().Dx() != 100 || cell.Bounds().Dy() != 100 {
			t.Fatalf("cell %s is %v", name, cell.Bounds())
		}
	}
}

func TestCrop_RejectsDegenerateGeometry(t *testing.T) {
	lc := NewLumaCropper()
	sheet := syntheticSheet(t)

	_, err := lc.Crop(context.Background(), sheet, domain.CropGeometry{
		HBoundaries: []int{0},
		VBoundaries: []int{0, 200},
	}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a single h boundary")
	}
}

func TestCombine_PairsAndStacks(t *testing.T) {
	lc := NewLumaCropper()
	ctx := context.Background()
	sheet := syntheticSheet(t)

	geom := domain.CropGeometry{
		Rows: 2, Cols: 2,
		HBoundaries: []int{0, 100, 200},
		VBoundaries: []int{0, 100, 200},
	}
	faceDir := filepath.Join(t.TempDir(), "face")
	versoDir := filepath.Join(t.TempDir(), "verso")
	if _, err := lc.Crop(ctx, sheet, geom, faceDir); err != nil {
		t.Fatalf("face crop: %v", err)
	}
	if _, err := lc.Crop(ctx, sheet, geom, versoDir); err != nil {
		t.Fatalf("verso crop: %v", err)
	}

	outDir := filepath.Join(t.TempDir(), "combined")
	res, err := lc.Combine(ctx, faceDir, versoDir, outDir)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(res.CombinedPaths) != 4 {
		t.Fatalf("combined = %v, want 4 pairs", res.CombinedPaths)
	}
	if len(res.LotPaths) != 2 {
		t.Fatalf("lots = %v, want one per column", res.LotPaths)
	}

	// A combined image is two 100px crops side by side.
	pair, err := loadImage(res.CombinedPaths[0])
	if err != nil {
		t.Fatalf("load combined: %v", err)
	}
	if pair.Bounds().Dx() != 200 || pair.Bounds().Dy() != 100 {
		t.Fatalf("combined bounds = %v", pair.Bounds())
	}
	// A lot stacks the column's two pairs.
	lot, err := loadImage(res.LotPaths[0])
	if err != nil {
		t.Fatalf("load lot: %v", err)
	}
	if lot.Bounds().Dx() != 200 || lot.Bounds().Dy() != 200 {
		t.Fatalf("lot bounds = %v", lot.Bounds())
	}
}

func TestCombine_EmptyFaceDir(t *testing.T) {
	lc := NewLumaCropper()
	if _, err := lc.Combine(context.Background(), t.TempDir(), t.TempDir(), t.TempDir()); err == nil {
		t.Fatal("expected an error for an empty face dir")
	}
}
