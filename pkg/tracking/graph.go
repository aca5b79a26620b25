package tracking

import (
	"context"
	"math"
	"time"

	"github.com/matzehuels/bactrack/pkg/affinity"
)

// GraphSolver is a greedy steepest-ascent solver over the layered frame
// graph. See the package documentation for its moves.
type GraphSolver struct {
	opts Options
}

// NewGraphSolver returns a heuristic solver. Limits in opts are ignored.
func NewGraphSolver(opts Options) *GraphSolver { return &GraphSolver{opts: opts} }

// Variant returns Graph.
func (s *GraphSolver) Variant() Variant { return Graph }

const moveTol = 1e-12

// move attaches an optional new path to the current selection. edge is the
// edge from an already selected node, or -1 for a fresh track; start is the
// first new node, or -1 when the edge joins two selected nodes.
type move struct {
	gain  float64
	edge  int
	start int
}

type greedy struct {
	p *Problem
	m *affinity.Matrix

	sel       []bool
	edges     []bool
	in, out   []int
	conflicts []int // selected nodes among ancestors and descendants

	fwd  []float64 // best gain of a path starting at i, excluding appearance
	next []int     // edge continuing that path, or -1
}

// Solve applies the most profitable move until none has positive gain.
// Ties go to the lowest node ID, so the result is deterministic.
func (s *GraphSolver) Solve(ctx context.Context, p *Problem) (*Selection, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	n := p.N()
	g := &greedy{
		p:         p,
		m:         p.Weights,
		sel:       make([]bool, n),
		edges:     make([]bool, p.Weights.Len()),
		in:        make([]int, n),
		out:       make([]int, n),
		conflicts: make([]int, n),
		fwd:       make([]float64, n),
		next:      make([]int, n),
	}

	moves := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g.forward()
		mv, ok := g.bestMove()
		if !ok {
			break
		}
		g.apply(mv)
		moves++
	}

	sel := newSelection(p, g.sel, g.edges)
	sel.Solver = Graph
	sel.Stats = Stats{Moves: moves, Duration: time.Since(start)}
	return sel, nil
}

func (g *greedy) available(i int) bool {
	return !g.sel[i] && g.conflicts[i] == 0
}

// forward computes fwd and next over available nodes in reverse ID order,
// which is reverse topological order since edges point to later frames.
func (g *greedy) forward() {
	for i := len(g.sel) - 1; i >= 0; i-- {
		g.next[i] = -1
		if !g.available(i) {
			g.fwd[i] = math.Inf(-1)
			continue
		}
		base := -g.p.penalty(i)
		g.fwd[i] = base + g.p.disappearCost(i)
		for _, e := range g.m.Out(i) {
			v := g.m.Edge(e).Target
			if !g.available(v) {
				continue
			}
			if cand := base + g.m.Edge(e).Weight + g.fwd[v]; cand > g.fwd[i] {
				g.fwd[i], g.next[i] = cand, e
			}
		}
	}
}

func (g *greedy) bestMove() (move, bool) {
	best := move{gain: moveTol}
	found := false
	consider := func(mv move) {
		if mv.gain > best.gain+moveTol {
			best, found = mv, true
		}
	}

	for i := range g.sel {
		if g.available(i) {
			consider(move{gain: g.p.appearCost(i) + g.fwd[i], edge: -1, start: i})
			continue
		}
		if !g.sel[i] || g.out[i] > 1 {
			continue
		}
		// Attach to selected node i: a second edge divides, a first edge
		// replaces its disappearance.
		base := -g.p.disappearCost(i)
		if g.out[i] == 1 {
			base = g.p.Costs.Division
		}
		for _, e := range g.m.Out(i) {
			edge := g.m.Edge(e)
			v := edge.Target
			switch {
			case g.available(v):
				consider(move{gain: base + edge.Weight + g.fwd[v], edge: e, start: v})
			case g.sel[v] && g.in[v] == 0:
				consider(move{gain: base + edge.Weight - g.p.appearCost(v), edge: e, start: -1})
			}
		}
	}
	return best, found
}

func (g *greedy) apply(mv move) {
	if mv.edge >= 0 {
		g.link(mv.edge)
	}
	if mv.start < 0 {
		return
	}
	for v := mv.start; ; {
		g.selectNode(v)
		e := g.next[v]
		if e < 0 {
			return
		}
		g.link(e)
		v = g.m.Edge(e).Target
	}
}

func (g *greedy) link(e int) {
	edge := g.m.Edge(e)
	g.edges[e] = true
	g.out[edge.Source]++
	g.in[edge.Target]++
}

func (g *greedy) selectNode(v int) {
	g.sel[v] = true
	seq := g.p.Sequence
	for _, a := range seq.Ancestors(v) {
		g.conflicts[a]++
	}
	for _, d := range seq.Descendants(v) {
		g.conflicts[d]++
	}
}
