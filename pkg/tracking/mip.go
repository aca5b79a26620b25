package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/milp"
)

// Formulation is the integer program of a [Problem] together with its
// variable layout. Each node i owns four consecutive variables (selected,
// appear, disappear, divide) starting at 4i; edge e owns variable 4N+e.
type Formulation struct {
	Model *milp.Model
	n     int
}

const varsPerNode = 4

func (f *Formulation) NodeVar(i int) milp.Var      { return milp.Var(varsPerNode * i) }
func (f *Formulation) AppearVar(i int) milp.Var    { return milp.Var(varsPerNode*i + 1) }
func (f *Formulation) DisappearVar(i int) milp.Var { return milp.Var(varsPerNode*i + 2) }
func (f *Formulation) DivideVar(i int) milp.Var    { return milp.Var(varsPerNode*i + 3) }
func (f *Formulation) EdgeVar(e int) milp.Var      { return milp.Var(varsPerNode*f.n + e) }

// Formulate builds the integer program of p. The problem must be valid.
//
// Constraints per node i:
//
//	Σ in-edges + appear = selected
//	selected + divide = Σ out-edges + disappear
//	divide <= selected
//	divide + disappear <= 1
//	selected + selected(a) <= 1     for every ancestor a
//	Σ selected over the chain <= 1  for every leaf with two or more ancestors
//
// The fourth row makes divide=1 exactly the two-outgoing-edges case even when
// costs are positive. The chain rows are implied by the pairwise ones for
// integer selections but tighten the relaxations the search bounds with.
func Formulate(p *Problem) *Formulation {
	n := p.N()
	m := milp.NewModel(milp.Maximize)
	f := &Formulation{Model: m, n: n}

	for i := range n {
		m.AddVar(fmt.Sprintf("node[%d]", i), -p.penalty(i))
		m.AddVar(fmt.Sprintf("appear[%d]", i), p.appearCost(i))
		m.AddVar(fmt.Sprintf("disappear[%d]", i), p.disappearCost(i))
		m.AddVar(fmt.Sprintf("divide[%d]", i), p.Costs.Division)
	}
	for _, e := range p.Weights.Edges() {
		m.AddVar(fmt.Sprintf("edge[%d,%d]", e.Source, e.Target), e.Weight)
	}

	for i := range n {
		node := f.NodeVar(i)

		in := []milp.Term{{Var: f.AppearVar(i), Coef: 1}, {Var: node, Coef: -1}}
		for _, e := range p.Weights.In(i) {
			in = append(in, milp.Term{Var: f.EdgeVar(e), Coef: 1})
		}
		m.AddConstraint(fmt.Sprintf("in[%d]", i), milp.EQ, 0, in...)

		out := []milp.Term{
			{Var: node, Coef: 1},
			{Var: f.DivideVar(i), Coef: 1},
			{Var: f.DisappearVar(i), Coef: -1},
		}
		for _, e := range p.Weights.Out(i) {
			out = append(out, milp.Term{Var: f.EdgeVar(e), Coef: -1})
		}
		m.AddConstraint(fmt.Sprintf("out[%d]", i), milp.EQ, 0, out...)

		m.AddConstraint(fmt.Sprintf("gate[%d]", i), milp.LE, 0,
			milp.Term{Var: f.DivideVar(i), Coef: 1}, milp.Term{Var: node, Coef: -1})
		m.AddConstraint(fmt.Sprintf("event[%d]", i), milp.LE, 1, milp.Sum(f.DivideVar(i), f.DisappearVar(i))...)

		ancestors := p.Sequence.Ancestors(i)
		for _, a := range ancestors {
			m.AddConstraint(fmt.Sprintf("excl[%d,%d]", i, a), milp.LE, 1, milp.Sum(node, f.NodeVar(a))...)
		}
		if len(ancestors) >= 2 && p.Sequence.Node(i).IsLeaf() {
			chain := []milp.Var{node}
			for _, a := range ancestors {
				chain = append(chain, f.NodeVar(a))
			}
			m.AddConstraint(fmt.Sprintf("chain[%d]", i), milp.LE, 1, milp.Sum(chain...)...)
		}
	}
	return f
}

// Values encodes a selection as a variable assignment.
func (f *Formulation) Values(sel *Selection) []float64 {
	x := make([]float64, f.Model.NumVars())
	set := func(v milp.Var, ok bool) {
		if ok {
			x[v] = 1
		}
	}
	for i := range f.n {
		set(f.NodeVar(i), sel.Nodes[i])
		set(f.AppearVar(i), sel.Appear[i])
		set(f.DisappearVar(i), sel.Disappear[i])
		set(f.DivideVar(i), sel.Divide[i])
	}
	for e, ok := range sel.Edges {
		set(f.EdgeVar(e), ok)
	}
	return x
}

// Decode reads a selection from solver values, thresholding at 0.5.
func (f *Formulation) Decode(x []float64) *Selection {
	on := func(v milp.Var) bool { return x[v] > 0.5 }
	s := &Selection{
		Nodes:     make([]bool, f.n),
		Appear:    make([]bool, f.n),
		Disappear: make([]bool, f.n),
		Divide:    make([]bool, f.n),
		Edges:     make([]bool, f.Model.NumVars()-varsPerNode*f.n),
	}
	for i := range f.n {
		s.Nodes[i] = on(f.NodeVar(i))
		s.Appear[i] = on(f.AppearVar(i))
		s.Disappear[i] = on(f.DisappearVar(i))
		s.Divide[i] = on(f.DivideVar(i))
	}
	for e := range s.Edges {
		s.Edges[e] = on(f.EdgeVar(e))
	}
	return s
}

// MIPSolver solves the exact integer-program formulation.
type MIPSolver struct {
	opts Options
}

// NewMIPSolver returns an exact solver with the given options.
func NewMIPSolver(opts Options) *MIPSolver { return &MIPSolver{opts: opts} }

// Variant returns MIP.
func (s *MIPSolver) Variant() Variant { return MIP }

// Solve formulates p and solves it with branch-and-bound. When a limit in
// the options or the context deadline stops the search, the best incumbent
// is returned with Exact=false and its gap. Cancellation returns the
// context's error. Infeasibility is reported as INTERNAL_ERROR since the
// empty selection is always feasible.
func (s *MIPSolver) Solve(ctx context.Context, p *Problem) (*Selection, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	f := Formulate(p)

	opts := milp.Options{
		TimeLimit: s.opts.TimeLimit,
		GapLimit:  s.opts.GapLimit,
		NodeLimit: s.opts.NodeLimit,
		LPMaxVars: s.opts.LPMaxVars,
		Progress:  s.opts.Progress,
	}
	if s.opts.WarmStart {
		warm, err := NewGraphSolver(s.opts).Solve(ctx, p)
		if err != nil {
			return nil, err
		}
		opts.Start = f.Values(warm)
	} else {
		opts.Start = make([]float64, f.Model.NumVars())
	}

	res, err := milp.Solve(ctx, f.Model, opts)
	switch {
	case errors.Is(err, milp.ErrInfeasible):
		return nil, bterrors.Wrap(bterrors.ErrCodeInternal, err, "tracking model has no feasible selection")
	case errors.Is(err, milp.ErrNoIncumbent):
		return nil, bterrors.Wrap(bterrors.ErrCodeTimeout, err, "solver stopped before finding a selection")
	case errors.Is(err, context.DeadlineExceeded) && res != nil:
		res.Status = milp.Feasible
	case err != nil:
		return nil, err
	}

	sel := f.Decode(res.Values)
	sel.Solver = MIP
	sel.Objective = Evaluate(p, sel)
	sel.Bound = res.Bound
	sel.Gap = res.Gap
	sel.Exact = res.Status == milp.Optimal
	sel.Stats = Stats{
		Explored:  res.Explored,
		Pruned:    res.Pruned,
		LPSolves:  res.LPSolves,
		WarmStart: res.StartUsed,
		Duration:  time.Since(start),
	}
	return sel, nil
}
