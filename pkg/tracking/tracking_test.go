package tracking

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/bactrack/pkg/affinity"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

func leaf(x0, y0, x1, y1 int, children ...*hierarchy.Node) *hierarchy.Node {
	return hierarchy.NewNode(hierarchy.RectRegion(64, image.Rect(x0, y0, x1, y1)), 1, children...)
}

func labeled(t *testing.T, frames ...*hierarchy.Hierarchy) *hierarchy.Sequence {
	t.Helper()
	seq := hierarchy.NewSequence(frames...)
	_, err := seq.Label()
	require.NoError(t, err)
	return seq
}

func matrix(t *testing.T, n int, edges ...affinity.Edge) *affinity.Matrix {
	t.Helper()
	m, err := affinity.NewMatrix(n, edges)
	require.NoError(t, err)
	return m
}

type namedSolver struct {
	name   string
	solver Solver
	exact  bool
}

func allSolvers() []namedSolver {
	return []namedSolver{
		{"mip", NewMIPSolver(DefaultOptions()), true},
		{"mip cold", NewMIPSolver(Options{}), true},
		{"mip without lp", NewMIPSolver(Options{LPMaxVars: -1}), true},
		{"graph", NewGraphSolver(Options{}), false},
	}
}

func solve(t *testing.T, s Solver, p *Problem) *Selection {
	t.Helper()
	sel, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, Verify(p, sel))
	assert.InDelta(t, Evaluate(p, sel), sel.Objective, 1e-9)
	return sel
}

// divisionProblem: frame 0 holds A, frame 1 holds siblings B and C, with
// A->B and A->C both weighted 5.
func divisionProblem(t *testing.T) *Problem {
	seq := labeled(t,
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4)),
		hierarchy.NewHierarchy(leaf(0, 0, 2, 4), leaf(2, 0, 4, 4)),
	)
	return &Problem{
		Sequence: seq,
		Weights:  matrix(t, 3, affinity.Edge{Source: 0, Target: 1, Weight: 5}, affinity.Edge{Source: 0, Target: 2, Weight: 5}),
		Costs:    DefaultCosts(),
	}
}

func TestDivision(t *testing.T) {
	for _, s := range allSolvers() {
		t.Run(s.name, func(t *testing.T) {
			sel := solve(t, s.solver, divisionProblem(t))

			assert.Equal(t, []bool{true, true, true}, sel.Nodes)
			assert.Equal(t, []bool{true, true}, sel.Edges)
			assert.Equal(t, []bool{true, false, false}, sel.Divide)
			assert.InDelta(t, 9.8, sel.Objective, 1e-9)
			if s.exact {
				assert.True(t, sel.Exact)
				assert.Zero(t, sel.Gap)
			}
		})
	}
}

func TestPenaltyExcludesCandidate(t *testing.T) {
	for _, s := range allSolvers() {
		t.Run(s.name, func(t *testing.T) {
			p := divisionProblem(t)
			p.Penalty = []float64{0, 0, 5.5}
			sel := solve(t, s.solver, p)

			assert.Equal(t, []bool{true, true, false}, sel.Nodes)
			assert.Equal(t, []bool{true, false}, sel.Edges)
			assert.False(t, sel.Divide[0])
			assert.InDelta(t, 5, sel.Objective, 1e-9)
		})
	}
}

func TestHierarchyExclusivity(t *testing.T) {
	// frame 0: P{L, R}; frame 1: Q{L', R'}; every cross pair weighted.
	seq := labeled(t,
		hierarchy.NewHierarchy(leaf(0, 0, 8, 8, leaf(0, 0, 4, 8), leaf(4, 0, 8, 8))),
		hierarchy.NewHierarchy(leaf(0, 0, 8, 8, leaf(0, 0, 4, 8), leaf(4, 0, 8, 8))),
	)

	weightings := map[string]func(s, t int) float64{
		"uniform":      func(int, int) float64 { return 10 },
		"parents":      func(s, t int) float64 { return float64(30 - 10*s - (t - 3)) },
		"children":     func(s, t int) float64 { return float64(s + t) },
		"parent heavy": func(s, t int) float64 {
			if s == 0 && t == 3 {
				return 50
			}
			return 1
		},
	}

	for wname, weight := range weightings {
		var edges []affinity.Edge
		for s := range 3 {
			for tgt := 3; tgt < 6; tgt++ {
				edges = append(edges, affinity.Edge{Source: s, Target: tgt, Weight: weight(s, tgt)})
			}
		}
		p := &Problem{Sequence: seq, Weights: matrix(t, 6, edges...), Costs: DefaultCosts()}

		for _, s := range allSolvers() {
			t.Run(wname+"/"+s.name, func(t *testing.T) {
				sel := solve(t, s.solver, p)
				for id := range 6 {
					for _, a := range seq.Ancestors(id) {
						assert.False(t, sel.Nodes[id] && sel.Nodes[a], "node %d and ancestor %d both selected", id, a)
					}
				}
			})
		}
	}
}

func TestHierarchyExclusivityOptimum(t *testing.T) {
	seq := labeled(t,
		hierarchy.NewHierarchy(leaf(0, 0, 8, 8, leaf(0, 0, 4, 8), leaf(4, 0, 8, 8))),
		hierarchy.NewHierarchy(leaf(0, 0, 8, 8, leaf(0, 0, 4, 8), leaf(4, 0, 8, 8))),
	)
	var edges []affinity.Edge
	for s := range 3 {
		for tgt := 3; tgt < 6; tgt++ {
			edges = append(edges, affinity.Edge{Source: s, Target: tgt, Weight: 10})
		}
	}
	p := &Problem{Sequence: seq, Weights: matrix(t, 6, edges...), Costs: DefaultCosts()}

	sel := solve(t, NewMIPSolver(DefaultOptions()), p)
	// Two child continuations (20) beat one parent division (19.8).
	assert.InDelta(t, 20, sel.Objective, 1e-9)
	assert.Equal(t, []int{1, 2, 4, 5}, sel.NodeIDs())
	assert.True(t, sel.Exact)
}

func TestSingleFrameBoundaryExemption(t *testing.T) {
	seq := labeled(t, hierarchy.NewHierarchy(leaf(0, 0, 4, 4, leaf(0, 0, 2, 2)), leaf(10, 10, 12, 12)))
	p := &Problem{Sequence: seq, Weights: matrix(t, 3), Costs: Costs{Division: -0.2, Appear: -7, Disappear: -7}}

	f := Formulate(p)
	for i := range 3 {
		assert.Zero(t, f.Model.Objective(f.AppearVar(i)), "appear[%d]", i)
		assert.Zero(t, f.Model.Objective(f.DisappearVar(i)), "disappear[%d]", i)
	}

	for _, s := range allSolvers() {
		t.Run(s.name, func(t *testing.T) {
			sel := solve(t, s.solver, p)
			assert.Zero(t, sel.Objective)
			for _, id := range sel.NodeIDs() {
				assert.True(t, sel.Appear[id] && sel.Disappear[id], "node %d", id)
			}
		})
	}
}

func TestIsolatedNodeStaysUnselected(t *testing.T) {
	// Node 1 in the middle frame has no edges; selecting it costs appear +
	// disappear.
	seq := labeled(t,
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4)),
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4), leaf(30, 30, 34, 34)),
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4)),
	)
	p := &Problem{
		Sequence: seq,
		Weights: matrix(t, 4,
			affinity.Edge{Source: 0, Target: 1, Weight: 1},
			affinity.Edge{Source: 1, Target: 3, Weight: 1},
		),
		Costs: DefaultCosts(),
	}
	for _, s := range allSolvers() {
		t.Run(s.name, func(t *testing.T) {
			sel := solve(t, s.solver, p)
			assert.Equal(t, []bool{true, true, false, true}, sel.Nodes)
			assert.InDelta(t, 2, sel.Objective, 1e-9)
		})
	}
}

func TestEmptySequence(t *testing.T) {
	p := &Problem{Sequence: labeled(t), Weights: matrix(t, 0), Costs: DefaultCosts()}
	for _, s := range allSolvers() {
		t.Run(s.name, func(t *testing.T) {
			sel := solve(t, s.solver, p)
			assert.Empty(t, sel.Nodes)
			assert.Empty(t, sel.Edges)
			assert.Zero(t, sel.Objective)
		})
	}
}

func TestAppearVersusContinuation(t *testing.T) {
	// The weak link 0->1 still beats starting a fresh track at 1, which
	// would pay the appearance cost.
	seq := labeled(t,
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4)),
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4)),
		hierarchy.NewHierarchy(leaf(0, 0, 4, 4)),
	)
	p := &Problem{
		Sequence: seq,
		Weights: matrix(t, 3,
			affinity.Edge{Source: 0, Target: 1, Weight: 0.5},
			affinity.Edge{Source: 1, Target: 2, Weight: 2},
		),
		Costs: DefaultCosts(),
	}
	for _, s := range allSolvers() {
		t.Run(s.name, func(t *testing.T) {
			sel := solve(t, s.solver, p)
			assert.Equal(t, []bool{true, true}, sel.Edges)
			assert.Equal(t, []bool{true, false, false}, sel.Appear)
			assert.InDelta(t, 2.5, sel.Objective, 1e-9)
		})
	}
}

func TestSolversAgreeOnRandomProblems(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := range 25 {
		p := randomProblem(t, rng, 3, 2)

		exact := solve(t, NewMIPSolver(Options{}), p)
		warm := solve(t, NewMIPSolver(DefaultOptions()), p)
		greedy := solve(t, NewGraphSolver(Options{}), p)

		assert.True(t, exact.Exact)
		assert.InDelta(t, exact.Objective, warm.Objective, 1e-6, "trial %d", trial)
		assert.LessOrEqual(t, greedy.Objective, exact.Objective+1e-9, "trial %d", trial)
		assert.GreaterOrEqual(t, greedy.Objective, -1e-9, "trial %d", trial)
	}
}

func TestLPBoundingDoesNotChangeOptimum(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := range 10 {
		p := randomProblem(t, rng, 2, 1)

		withLP := solve(t, NewMIPSolver(Options{}), p)
		withoutLP := solve(t, NewMIPSolver(Options{LPMaxVars: -1, WarmStart: true}), p)
		assert.InDelta(t, withLP.Objective, withoutLP.Objective, 1e-6, "trial %d", trial)
	}
}

func randomProblem(t *testing.T, rng *rand.Rand, frames, maxKids int) *Problem {
	t.Helper()
	var hs []*hierarchy.Hierarchy
	for range frames {
		var roots []*hierarchy.Node
		for r := range 1 + rng.IntN(2) {
			x := 10 * r
			var kids []*hierarchy.Node
			for k := range rng.IntN(maxKids + 1) {
				kids = append(kids, leaf(x+3*k, 0, x+3*k+2, 2))
			}
			roots = append(roots, leaf(x, 0, x+9, 9, kids...))
		}
		hs = append(hs, hierarchy.NewHierarchy(roots...))
	}
	seq := labeled(t, hs...)

	var edges []affinity.Edge
	for f := 0; f+1 < frames; f++ {
		for _, a := range seq.FrameNodes(f) {
			for _, b := range seq.FrameNodes(f + 1) {
				if rng.IntN(3) > 0 {
					edges = append(edges, affinity.Edge{Source: a.ID, Target: b.ID, Weight: 3 * rng.Float64()})
				}
			}
		}
	}
	penalty := make([]float64, seq.Len())
	for i := range penalty {
		penalty[i] = rng.Float64() - 0.3
	}
	return &Problem{Sequence: seq, Weights: matrix(t, seq.Len(), edges...), Penalty: penalty, Costs: DefaultCosts()}
}

func TestMIPLimitsReturnIncumbent(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	p := randomProblem(t, rng, 4, 2)

	sel := solve(t, NewMIPSolver(Options{NodeLimit: 1, WarmStart: true, LPMaxVars: -1}), p)
	assert.True(t, sel.Stats.WarmStart)
	if !sel.Exact {
		assert.GreaterOrEqual(t, sel.Bound, sel.Objective)
		assert.Positive(t, sel.Gap)
	}
}

// denseProblem builds frames of cells roots, each split into two children,
// with random links between half of the adjacent-frame pairs.
func denseProblem(t *testing.T, rng *rand.Rand, frames, cells int) *Problem {
	t.Helper()
	var hs []*hierarchy.Hierarchy
	for range frames {
		var roots []*hierarchy.Node
		for c := range cells {
			x := 10 * c
			roots = append(roots, leaf(x, 0, x+9, 9, leaf(x, 0, x+4, 9), leaf(x+5, 0, x+9, 9)))
		}
		hs = append(hs, hierarchy.NewHierarchy(roots...))
	}
	seq := labeled(t, hs...)

	var edges []affinity.Edge
	for f := 0; f+1 < frames; f++ {
		for _, a := range seq.FrameNodes(f) {
			for _, b := range seq.FrameNodes(f + 1) {
				if rng.IntN(2) == 0 {
					edges = append(edges, affinity.Edge{Source: a.ID, Target: b.ID, Weight: 2 * rng.Float64()})
				}
			}
		}
	}
	return &Problem{Sequence: seq, Weights: matrix(t, seq.Len(), edges...), Costs: DefaultCosts()}
}

func TestMIPTimeLimit(t *testing.T) {
	p := denseProblem(t, rand.New(rand.NewPCG(4, 2)), 8, 6)
	limit := 200 * time.Millisecond

	start := time.Now()
	sel := solve(t, NewMIPSolver(Options{TimeLimit: limit, WarmStart: true}), p)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*limit)
	assert.GreaterOrEqual(t, sel.Bound, sel.Objective-1e-9)
	if !sel.Exact {
		assert.Positive(t, sel.Gap)
	}
	greedy := solve(t, NewGraphSolver(Options{}), p)
	assert.GreaterOrEqual(t, sel.Objective, greedy.Objective-1e-9)
}

func TestMIPDeadlineReturnsIncumbent(t *testing.T) {
	p := denseProblem(t, rand.New(rand.NewPCG(8, 1)), 8, 6)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	sel, err := NewMIPSolver(DefaultOptions()).Solve(ctx, p)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	require.NoError(t, Verify(p, sel))
	assert.GreaterOrEqual(t, sel.Objective, -1e-9)
}

func TestMIPMidSizeWithinLimit(t *testing.T) {
	p := denseProblem(t, rand.New(rand.NewPCG(6, 6)), 4, 5)
	require.Equal(t, 60, p.N())

	sel := solve(t, NewMIPSolver(Options{TimeLimit: 10 * time.Second, WarmStart: true}), p)
	assert.Less(t, sel.Stats.Duration, 20*time.Second)
	greedy := solve(t, NewGraphSolver(Options{}), p)
	assert.GreaterOrEqual(t, sel.Objective, greedy.Objective-1e-9)
	if sel.Exact {
		assert.InDelta(t, sel.Objective, sel.Bound, 1e-6)
	}
}

func TestSolveDoesNotModifyProblem(t *testing.T) {
	p := divisionProblem(t)
	p.Penalty = []float64{0.1, 0.2, 0.3}
	edges := slices.Clone(p.Weights.Edges())
	penalty := slices.Clone(p.Penalty)

	for _, s := range allSolvers() {
		solve(t, s.solver, p)
	}
	assert.Equal(t, edges, p.Weights.Edges())
	assert.Equal(t, penalty, p.Penalty)
	assert.Equal(t, hierarchy.NoParent, p.Sequence.Node(1).Parent)
}

func TestSolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range allSolvers() {
		_, err := s.solver.Solve(ctx, divisionProblem(t))
		assert.ErrorIs(t, err, context.Canceled, s.name)
	}
}

func TestProblemValidate(t *testing.T) {
	unlabeled := hierarchy.NewSequence(hierarchy.NewHierarchy(leaf(0, 0, 1, 1)))
	_, err := NewGraphSolver(Options{}).Solve(context.Background(), &Problem{Sequence: unlabeled, Weights: matrix(t, 1)})
	assert.True(t, errors.Is(err, hierarchy.ErrNotLabeled))

	p := divisionProblem(t)
	p.Penalty = []float64{1}
	assert.True(t, bterrors.Is(p.Validate(), bterrors.ErrCodeInvalidInput))

	p = divisionProblem(t)
	p.Weights = matrix(t, 2)
	assert.True(t, bterrors.Is(p.Validate(), bterrors.ErrCodeInvalidInput))

	p = divisionProblem(t)
	p.Weights = nil
	assert.Error(t, p.Validate())
}

func TestVerifyRejects(t *testing.T) {
	p := divisionProblem(t)
	good := newSelection(p, []bool{true, true, true}, []bool{true, true})
	require.NoError(t, Verify(p, good))

	tests := []struct {
		name   string
		mutate func(*Selection)
	}{
		{"edge to unselected", func(s *Selection) { s.Nodes[2] = false }},
		{"flag on unselected", func(s *Selection) { s.Nodes[2], s.Edges[1], s.Appear[2] = false, false, true }},
		{"divide without two edges", func(s *Selection) {
			s.Edges[1], s.Nodes[2] = false, false
			s.Appear[2], s.Disappear[2] = false, false
		}},
		{"appear with incoming", func(s *Selection) { s.Appear[1] = true }},
		{"short slice", func(s *Selection) { s.Divide = s.Divide[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := newSelection(p, []bool{true, true, true}, []bool{true, true})
			tt.mutate(sel)
			assert.True(t, bterrors.Is(Verify(p, sel), bterrors.ErrCodeInternal))
		})
	}
}

func TestFormulateShape(t *testing.T) {
	seq := labeled(t,
		hierarchy.NewHierarchy(leaf(0, 0, 8, 8, leaf(0, 0, 4, 8, leaf(0, 0, 2, 2)))),
		hierarchy.NewHierarchy(leaf(0, 0, 8, 8)),
	)
	p := &Problem{Sequence: seq, Weights: matrix(t, 4, affinity.Edge{Source: 2, Target: 3, Weight: 1}), Costs: DefaultCosts()}
	f := Formulate(p)

	require.NoError(t, f.Model.Err())
	assert.Equal(t, 4*4+1, f.Model.NumVars())
	// 4 rows per node, one per (node, ancestor) pair (0+1+2+0) and one chain
	// row for the leaf under two ancestors.
	assert.Equal(t, 4*4+3+1, f.Model.NumConstraints())
	assert.Equal(t, DefaultAppearCost, f.Model.Objective(f.AppearVar(3)))
	assert.Equal(t, DefaultDisappearCost, f.Model.Objective(f.DisappearVar(0)))
	assert.Equal(t, 1.0, f.Model.Objective(f.EdgeVar(0)))

	sel := newSelection(p, []bool{false, false, true, true}, []bool{true})
	assert.NoError(t, f.Model.Check(f.Values(sel)))
	assert.Equal(t, sel.Nodes, f.Decode(f.Values(sel)).Nodes)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("MIP_solver")
	require.NoError(t, err)
	assert.Equal(t, MIP, v)

	v, err = ParseVariant("graph")
	require.NoError(t, err)
	assert.Equal(t, Graph, v)

	_, err = ParseVariant("flow")
	require.Error(t, err)
	assert.True(t, bterrors.Is(err, bterrors.ErrCodeInvalidConfig))
	assert.Contains(t, err.Error(), "mip, graph")

	_, err = New(Variant(9), Options{})
	assert.True(t, bterrors.Is(err, bterrors.ErrCodeInvalidConfig))

	text, _ := Graph.MarshalText()
	assert.Equal(t, "graph", string(text))
}
