// Grid extraction over the standard image packages.
//
// Sheets of collectibles are scanned as a light background with darker cards
// on it. Row and column boundaries are found from luminance profiles: a run
// of rows brighter than the sheet average is a gap between cards, and the
// center of each run becomes a cut position. Detected positions go through
// CleanBoundaries before they are used or persisted.
package cropper

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	_ "image/gif"
	_ "image/png"

	"github.com/pverne/scanledger/internal/domain"
)

const (
	// edgeFraction keeps detected cuts away from the outer 5% of the sheet.
	edgeFraction = 0.05
	// gapDelta is how much brighter than the sheet mean a profile row must
	// be to count as background between cards.
	gapDelta = 12.0
	// jpegQuality for derived crops.
	jpegQuality = 92
)

// LumaCropper implements Cropper with pure-Go image decoding and luminance
// profile analysis. Safe for concurrent use; it holds no state.
type LumaCropper struct{}

// NewLumaCropper returns a ready cropper.
func NewLumaCropper() *LumaCropper { return &LumaCropper{} }

// DetectGrid proposes a grid layout for the sheet image at imagePath.
func (lc *LumaCropper) DetectGrid(ctx context.Context, imagePath string) (GridLayout, error) {
	if err := ctx.Err(); err != nil {
		return GridLayout{}, err
	}
	img, err := loadImage(imagePath)
	if err != nil {
		return GridLayout{}, err
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	rowProfile, colProfile := lumaProfiles(img)

	hInternal := gapCenters(rowProfile)
	vInternal := gapCenters(colProfile)

	h := CleanBoundaries(hInternal, height, height/10, edgeFraction)
	v := CleanBoundaries(vInternal, width, width/10, edgeFraction)

	return GridLayout{
		Rows:        len(h) - 1,
		Cols:        len(v) - 1,
		HBoundaries: h,
		VBoundaries: v,
		Width:       width,
		Height:      height,
	}, nil
}

// Crop cuts the sheet along the geometry's boundaries and writes one JPEG per
// cell into outDir, named crop_row<i>_col<j>.jpg, returned in row-major order.
func (lc *LumaCropper) Crop(ctx context.Context, imagePath string, geom domain.CropGeometry, outDir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}
	if len(geom.HBoundaries) < 2 || len(geom.VBoundaries) < 2 {
		return nil, fmt.Errorf("crop: need at least 2 boundaries per axis, got %dx%d",
			len(geom.HBoundaries), len(geom.VBoundaries))
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	h := clampSorted(geom.HBoundaries, bounds.Dy())
	v := clampSorted(geom.VBoundaries, bounds.Dx())

	var paths []string
	for i := 0; i+1 < len(h); i++ {
		y0, y1 := h[i], h[i+1]
		if y1 <= y0 {
			continue
		}
		for j := 0; j+1 < len(v); j++ {
			x0, x1 := v[j], v[j+1]
			if x1 <= x0 {
				continue
			}
			cell := cropRect(img, image.Rect(bounds.Min.X+x0, bounds.Min.Y+y0, bounds.Min.X+x1, bounds.Min.Y+y1))
			out := filepath.Join(outDir, fmt.Sprintf("crop_row%d_col%d.jpg", i, j))
			if err := saveJPEG(out, cell); err != nil {
				return nil, err
			}
			paths = append(paths, out)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("crop: boundaries produced no cells")
	}
	return paths, nil
}

var cropName = regexp.MustCompile(`^crop_row(\d+)_col(\d+)\.jpg$`)

// Combine pairs face and verso crops by grid position. Each pair is scaled to
// a common height and joined side by side into combined_row<i>_col<j>.jpg;
// the pairs of one column are then stacked into lot_col<j>.jpg. The grid is
// taken from the file names actually present, not from the caller.
func (lc *LumaCropper) Combine(ctx context.Context, faceDir, versoDir, outDir string) (CombineResult, error) {
	if err := ctx.Err(); err != nil {
		return CombineResult{}, err
	}
	positions, err := cropPositions(faceDir)
	if err != nil {
		return CombineResult{}, err
	}
	if len(positions) == 0 {
		return CombineResult{}, fmt.Errorf("combine: no crops found in %s", faceDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return CombineResult{}, err
	}

	maxRow, maxCol := 0, 0
	for pos := range positions {
		if pos[0] > maxRow {
			maxRow = pos[0]
		}
		if pos[1] > maxCol {
			maxCol = pos[1]
		}
	}

	var res CombineResult
	for col := 0; col <= maxCol; col++ {
		var pairs []image.Image
		for row := 0; row <= maxRow; row++ {
			if _, okPos := positions[[2]int{row, col}]; !okPos {
				continue
			}
			name := fmt.Sprintf("crop_row%d_col%d.jpg", row, col)
			face, ferr := loadImage(filepath.Join(faceDir, name))
			verso, verr := loadImage(filepath.Join(versoDir, name))
			if ferr != nil || verr != nil {
				continue
			}
			pair := sideBySide(face, verso)
			out := filepath.Join(outDir, fmt.Sprintf("combined_row%d_col%d.jpg", row, col))
			if err := saveJPEG(out, pair); err != nil {
				return CombineResult{}, err
			}
			res.CombinedPaths = append(res.CombinedPaths, out)
			pairs = append(pairs, pair)
		}
		if len(pairs) == 0 {
			continue
		}
		lot := stack(pairs)
		out := filepath.Join(outDir, fmt.Sprintf("lot_col%d.jpg", col))
		if err := saveJPEG(out, lot); err != nil {
			return CombineResult{}, err
		}
		res.LotPaths = append(res.LotPaths, out)
	}
	return res, nil
}

// cropPositions parses crop_row<i>_col<j>.jpg names in dir into a position set.
func cropPositions(dir string) (map[[2]int]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	positions := map[[2]int]struct{}{}
	for _, e := range entries {
		m := cropName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		row, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		positions[[2]int{row, col}] = struct{}{}
	}
	return positions, nil
}

// lumaProfiles returns the mean luminance per row and per column.
func lumaProfiles(img image.Image) (rows, cols []float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rows = make([]float64, h)
	cols = make([]float64, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			l := float64(c.Y)
			rows[y] += l
			cols[x] += l
		}
	}
	for y := range rows {
		rows[y] /= float64(w)
	}
	for x := range cols {
		cols[x] /= float64(h)
	}
	return rows, cols
}

// gapCenters finds runs of the profile brighter than mean+gapDelta and
// returns the center of each run.
func gapCenters(profile []float64) []int {
	if len(profile) == 0 {
		return nil
	}
	var mean float64
	for _, v := range profile {
		mean += v
	}
	mean /= float64(len(profile))
	threshold := mean + gapDelta

	var centers []int
	runStart := -1
	for i, v := range profile {
		if v >= threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			centers = append(centers, (runStart+i)/2)
			runStart = -1
		}
	}
	if runStart >= 0 {
		centers = append(centers, (runStart+len(profile))/2)
	}
	return centers
}

// clampSorted sorts, deduplicates, and clamps boundary values into [0, extent].
func clampSorted(in []int, extent int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, v := range in {
		if v < 0 || v > extent {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// cropRect copies the region r of img into a fresh RGBA image.
func cropRect(img image.Image, r image.Rectangle) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out
}

// scaleTo resizes img to w×h with nearest-neighbor sampling. Quality is
// secondary here: lot and combined images are operator previews.
func scaleTo(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

// sideBySide joins two images horizontally at their smaller common height.
func sideBySide(left, right image.Image) image.Image {
	lh, rh := left.Bounds().Dy(), right.Bounds().Dy()
	target := lh
	if rh < target {
		target = rh
	}
	if target < 1 {
		target = 1
	}
	l := scaleTo(left, left.Bounds().Dx()*target/maxInt(lh, 1), target)
	r := scaleTo(right, right.Bounds().Dx()*target/maxInt(rh, 1), target)

	w := l.Bounds().Dx() + r.Bounds().Dx()
	out := image.NewRGBA(image.Rect(0, 0, w, target))
	drawAt(out, l, 0, 0)
	drawAt(out, r, l.Bounds().Dx(), 0)
	return out
}

// stack joins images vertically at their widest common width.
func stack(imgs []image.Image) image.Image {
	maxW := 0
	for _, img := range imgs {
		if w := img.Bounds().Dx(); w > maxW {
			maxW = w
		}
	}
	var scaled []image.Image
	totalH := 0
	for _, img := range imgs {
		b := img.Bounds()
		h := b.Dy() * maxW / maxInt(b.Dx(), 1)
		if h < 1 {
			h = 1
		}
		s := scaleTo(img, maxW, h)
		scaled = append(scaled, s)
		totalH += h
	}
	out := image.NewRGBA(image.Rect(0, 0, maxW, totalH))
	y := 0
	for _, s := range scaled {
		drawAt(out, s, 0, y)
		y += s.Bounds().Dy()
	}
	return out
}

// drawAt copies src into dst with its top-left corner at (x, y).
func drawAt(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	for sy := 0; sy < b.Dy(); sy++ {
		for sx := 0; sx < b.Dx(); sx++ {
			dst.Set(x+sx, y+sy, src.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func saveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
}
