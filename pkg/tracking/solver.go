package tracking

import (
	"context"
	"time"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/milp"
)

// Solver selects nodes and edges for a [Problem].
//
// Implementations must return selections that pass [Verify] and must not
// modify the problem.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Selection, error)
	Variant() Variant
}

// Options configures solvers. Limits only apply to the MIP solver.
type Options struct {
	TimeLimit time.Duration
	GapLimit  float64
	NodeLimit int
	LPMaxVars int

	// WarmStart seeds the MIP search with the Graph solver's selection.
	WarmStart bool

	// Progress receives periodic branch-and-bound snapshots.
	Progress func(milp.Progress)
}

// DefaultOptions returns solver options with warm starting enabled and no limits.
func DefaultOptions() Options {
	return Options{WarmStart: true}
}

// New returns the solver for v.
func New(v Variant, opts Options) (Solver, error) {
	switch v {
	case MIP:
		return NewMIPSolver(opts), nil
	case Graph:
		return NewGraphSolver(opts), nil
	}
	return nil, bterrors.InvalidChoice("solver", v.String(), Variants())
}
