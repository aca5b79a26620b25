package affinity

import (
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

// DefaultMinSize is the area, in pixels, below which a candidate is
// considered implausibly small.
const DefaultMinSize = 15

// PenaltyParams configures [Penalty]. The zero value yields all-zero penalties.
type PenaltyParams struct {
	MinSize        int     // Candidates with fewer pixels pay SizeCost
	SizeCost       float64 // Flat cost for undersized candidates
	ConfidenceCost float64 // Scales (1 - confidence)
}

// DefaultPenaltyParams returns the penalty configuration used when penalties
// are enabled without explicit values.
func DefaultPenaltyParams() PenaltyParams {
	return PenaltyParams{MinSize: DefaultMinSize, SizeCost: 1, ConfidenceCost: 0.5}
}

// Validate rejects negative sizes and negative or non-finite costs.
func (p PenaltyParams) Validate() error {
	if p.MinSize < 0 {
		return bterrors.New(bterrors.ErrCodeInvalidConfig, "penalty min size must not be negative, got %d", p.MinSize)
	}
	if err := bterrors.ValidateNonNegative("penalty size cost", p.SizeCost); err != nil {
		return err
	}
	return bterrors.ValidateNonNegative("penalty confidence cost", p.ConfidenceCost)
}

// Penalty returns a per-node cost indexed by node ID. The cost is
// non-increasing in both size and confidence, and depends only on the node's
// cached features.
func Penalty(seq *hierarchy.Sequence, p PenaltyParams) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := seq.RequireLabeled(); err != nil {
		return nil, err
	}
	out := make([]float64, seq.Len())
	for n := range seq.All() {
		var c float64
		if n.Features.Size < p.MinSize {
			c += p.SizeCost
		}
		c += p.ConfidenceCost * (1 - n.Features.Confidence)
		out[n.ID] = c
	}
	return out, nil
}
