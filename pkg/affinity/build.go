package affinity

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

// DefaultDistanceThreshold is the centroid distance, in pixels, beyond which
// the Distance variant excludes a pair.
const DefaultDistanceThreshold = 20.0

// Params configures [Build].
type Params struct {
	Variant Variant

	// Threshold is the Distance variant's cutoff in pixels.
	// Zero means DefaultDistanceThreshold.
	Threshold float64

	// Scale multiplies every weight. Zero means 1.
	Scale float64

	// MinWeight drops edges whose scaled weight is not above it.
	MinWeight float64

	// Workers bounds concurrent frame pairs. Zero means GOMAXPROCS.
	Workers int
}

// ValidateAndSetDefaults checks the parameters and fills zero values.
func (p *Params) ValidateAndSetDefaults() error {
	if p.Variant < Overlap || p.Variant > Distance {
		return bterrors.InvalidChoice("weight variant", p.Variant.String(), Variants())
	}
	if p.Threshold == 0 {
		p.Threshold = DefaultDistanceThreshold
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	if err := bterrors.ValidatePositive("weight threshold", p.Threshold); err != nil {
		return err
	}
	if err := bterrors.ValidatePositive("weight scale", p.Scale); err != nil {
		return err
	}
	return bterrors.ValidateFinite("minimum weight", p.MinWeight)
}

// Build computes the affinity matrix of a labeled sequence.
//
// Only candidates of adjacent frames are compared. The returned matrix is
// sorted and indexed; the sequence is not modified.
func Build(ctx context.Context, seq *hierarchy.Sequence, p Params) (*Matrix, error) {
	if err := p.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if err := seq.RequireLabeled(); err != nil {
		return nil, err
	}

	pairs := max(seq.FrameCount()-1, 0)
	parts := make([][]Edge, pairs)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for t := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			parts[t] = framePair(seq.FrameNodes(t), seq.FrameNodes(t+1), p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, part := range parts {
		total += len(part)
	}
	edges := make([]Edge, 0, total)
	for _, part := range parts {
		edges = append(edges, part...)
	}
	// Frame ranges are contiguous and each part is emitted in (source,
	// target) order, so the concatenation is already sorted.
	return newSortedMatrix(seq.Len(), edges), nil
}

func framePair(src, dst []*hierarchy.Node, p Params) []Edge {
	var out []Edge
	for _, a := range src {
		for _, b := range dst {
			w, ok := weigh(a.Region, b.Region, p)
			if !ok {
				continue
			}
			if w *= p.Scale; w > p.MinWeight {
				out = append(out, Edge{Source: a.ID, Target: b.ID, Weight: w})
			}
		}
	}
	return out
}

// weigh returns the unscaled weight and whether the pair passes the
// variant's inclusion predicate.
func weigh(a, b *hierarchy.Region, p Params) (float64, bool) {
	switch p.Variant {
	case Overlap:
		inter := a.Overlap(b)
		if inter == 0 {
			return 0, false
		}
		return float64(inter) / float64(min(a.Area(), b.Area())), true
	case IoU:
		if a.Overlap(b) == 0 {
			return 0, false
		}
		return a.IoU(b), true
	case Distance:
		if a.Area() == 0 || b.Area() == 0 {
			return 0, false
		}
		ax, ay := a.Centroid()
		bx, by := b.Centroid()
		d := math.Hypot(ax-bx, ay-by)
		if d >= p.Threshold {
			return 0, false
		}
		return 1 - d/p.Threshold, true
	}
	return 0, false
}
