package hierarchy

import (
	"image"
	"slices"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
)

// Region is the pixel support of a candidate: a sorted set of linear pixel
// indices (y*Width + x) in an image of the given width.
//
// Region values are immutable after construction.
type Region struct {
	width  int
	pixels []int
	bounds image.Rectangle
	cx, cy float64
}

// NewRegion builds a region from linear pixel indices. The input is copied,
// sorted and de-duplicated. Width must be positive and indices non-negative.
func NewRegion(width int, pixels []int) (*Region, error) {
	if width <= 0 {
		return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "region width must be positive, got %d", width)
	}
	px := slices.Clone(pixels)
	slices.Sort(px)
	px = slices.Compact(px)
	if len(px) > 0 && px[0] < 0 {
		return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "region pixel index must not be negative, got %d", px[0])
	}

	r := &Region{width: width, pixels: px}
	r.measure()
	return r, nil
}

// RegionFromPoints builds a region from pixel coordinates.
func RegionFromPoints(width int, pts []image.Point) (*Region, error) {
	px := make([]int, 0, len(pts))
	for _, p := range pts {
		if p.X < 0 || p.Y < 0 || p.X >= width {
			return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "pixel %v outside image of width %d", p, width)
		}
		px = append(px, p.Y*width+p.X)
	}
	return NewRegion(width, px)
}

// RectRegion returns the region covering rect, clipped to x in [0, width).
func RectRegion(width int, rect image.Rectangle) *Region {
	rect = rect.Intersect(image.Rect(0, 0, width, rect.Max.Y))
	px := make([]int, 0, rect.Dx()*rect.Dy())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			px = append(px, y*width+x)
		}
	}
	r := &Region{width: width, pixels: px}
	r.measure()
	return r
}

func (r *Region) measure() {
	if len(r.pixels) == 0 {
		return
	}
	minX, minY := r.width, r.pixels[0]/r.width
	maxX, maxY := -1, r.pixels[len(r.pixels)-1]/r.width
	var sx, sy float64
	for _, p := range r.pixels {
		x, y := p%r.width, p/r.width
		minX = min(minX, x)
		maxX = max(maxX, x)
		sx += float64(x)
		sy += float64(y)
	}
	r.bounds = image.Rect(minX, minY, maxX+1, maxY+1)
	n := float64(len(r.pixels))
	r.cx, r.cy = sx/n, sy/n
}

// Width returns the width of the image the region indexes into.
func (r *Region) Width() int { return r.width }

// Pixels returns the sorted linear pixel indices. The slice must not be modified.
func (r *Region) Pixels() []int { return r.pixels }

// Area returns the number of pixels.
func (r *Region) Area() int { return len(r.pixels) }

// Bounds returns the tight bounding box; empty for an empty region.
func (r *Region) Bounds() image.Rectangle { return r.bounds }

// Centroid returns the mean pixel coordinate. It is (0, 0) for an empty region.
func (r *Region) Centroid() (x, y float64) { return r.cx, r.cy }

// Overlap returns the number of pixels shared with o.
// Regions indexing images of different widths never overlap.
func (r *Region) Overlap(o *Region) int {
	if r == nil || o == nil || r.width != o.width || !r.bounds.Overlaps(o.bounds) {
		return 0
	}
	a, b := r.pixels, o.pixels
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}

// IoU returns the intersection over union with o, or 0 when both are empty.
func (r *Region) IoU(o *Region) float64 {
	inter := r.Overlap(o)
	union := r.Area() + o.Area() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Contains reports whether every pixel of o is also in r.
func (r *Region) Contains(o *Region) bool {
	return r.Overlap(o) == o.Area()
}
