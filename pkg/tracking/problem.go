package tracking

import (
	"math"

	"github.com/matzehuels/bactrack/pkg/affinity"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

// Problem is the input of a [Solver]. Solvers never modify it.
type Problem struct {
	Sequence *hierarchy.Sequence
	Weights  *affinity.Matrix
	Penalty  []float64 // Optional; indexed by node ID
	Costs    Costs
}

// Validate checks that the sequence is labeled, the matrix spans it with
// adjacent-frame edges only, and the penalty and costs are well formed.
func (p *Problem) Validate() error {
	if p.Sequence == nil {
		return bterrors.New(bterrors.ErrCodeInvalidInput, "problem has no sequence")
	}
	if err := p.Sequence.RequireLabeled(); err != nil {
		return err
	}
	if p.Weights == nil {
		return bterrors.New(bterrors.ErrCodeInvalidInput, "problem has no weight matrix")
	}
	if err := p.Weights.CheckSequence(p.Sequence); err != nil {
		return err
	}
	if p.Penalty != nil {
		if len(p.Penalty) != p.Sequence.Len() {
			return bterrors.New(bterrors.ErrCodeInvalidInput,
				"penalty has %d entries, sequence has %d nodes", len(p.Penalty), p.Sequence.Len())
		}
		for i, v := range p.Penalty {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return bterrors.New(bterrors.ErrCodeInvalidInput, "penalty of node %d is not finite", i)
			}
		}
	}
	return p.Costs.Validate()
}

// N returns the node count.
func (p *Problem) N() int { return p.Sequence.Len() }

func (p *Problem) penalty(i int) float64 {
	if p.Penalty == nil {
		return 0
	}
	return p.Penalty[i]
}

// appearCost is zero for nodes of the first frame.
func (p *Problem) appearCost(i int) float64 {
	if p.Sequence.Frame(i) == 0 {
		return 0
	}
	return p.Costs.Appear
}

// disappearCost is zero for nodes of the last frame.
func (p *Problem) disappearCost(i int) float64 {
	if p.Sequence.Frame(i) == p.Sequence.FrameCount()-1 {
		return 0
	}
	return p.Costs.Disappear
}
