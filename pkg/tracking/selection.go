package tracking

import (
	"fmt"
	"time"

	"github.com/matzehuels/bactrack/pkg/affinity"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
)

// Stats describes how a selection was obtained.
type Stats struct {
	Explored  int           `json:"explored,omitempty"`
	Pruned    int           `json:"pruned,omitempty"`
	LPSolves  int           `json:"lp_solves,omitempty"`
	Moves     int           `json:"moves,omitempty"`
	WarmStart bool          `json:"warm_start,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Selection is the decoded result of a solve. Node-indexed slices have one
// entry per node ID; Edges has one entry per matrix edge index.
//
// Bound and Gap are only reported by the MIP solver; Exact is true when the
// objective is proven optimal.
type Selection struct {
	Solver    Variant `json:"solver"`
	Nodes     []bool  `json:"nodes"`
	Edges     []bool  `json:"edges"`
	Appear    []bool  `json:"appear"`
	Disappear []bool  `json:"disappear"`
	Divide    []bool  `json:"divide"`

	Objective float64 `json:"objective"`
	Bound     float64 `json:"bound,omitempty"`
	Gap       float64 `json:"gap,omitempty"`
	Exact     bool    `json:"exact"`
	Stats     Stats   `json:"stats"`
}

// newSelection derives event flags from a node and edge choice.
func newSelection(p *Problem, nodes, edges []bool) *Selection {
	n := p.N()
	s := &Selection{
		Nodes:     nodes,
		Edges:     edges,
		Appear:    make([]bool, n),
		Disappear: make([]bool, n),
		Divide:    make([]bool, n),
	}
	for i := range n {
		if !nodes[i] {
			continue
		}
		in, out := s.degree(p.Weights, i)
		s.Appear[i] = in == 0
		s.Disappear[i] = out == 0
		s.Divide[i] = out == 2
	}
	s.Objective = Evaluate(p, s)
	return s
}

func (s *Selection) degree(m *affinity.Matrix, i int) (in, out int) {
	for _, e := range m.In(i) {
		if s.Edges[e] {
			in++
		}
	}
	for _, e := range m.Out(i) {
		if s.Edges[e] {
			out++
		}
	}
	return in, out
}

// NodeIDs returns the selected node IDs in ascending order.
func (s *Selection) NodeIDs() []int {
	var ids []int
	for i, ok := range s.Nodes {
		if ok {
			ids = append(ids, i)
		}
	}
	return ids
}

// EdgeList returns the selected edges of m in matrix order.
func (s *Selection) EdgeList(m *affinity.Matrix) []affinity.Edge {
	var es []affinity.Edge
	for i, ok := range s.Edges {
		if ok {
			es = append(es, m.Edge(i))
		}
	}
	return es
}

// Counts summarizes the selection.
type Counts struct {
	Nodes          int `json:"nodes"`
	Edges          int `json:"edges"`
	Appearances    int `json:"appearances"`
	Disappearances int `json:"disappearances"`
	Divisions      int `json:"divisions"`
}

// Counts tallies selected nodes, edges and events.
func (s *Selection) Counts() Counts {
	var c Counts
	for i, ok := range s.Nodes {
		if !ok {
			continue
		}
		c.Nodes++
		if s.Appear[i] {
			c.Appearances++
		}
		if s.Disappear[i] {
			c.Disappearances++
		}
		if s.Divide[i] {
			c.Divisions++
		}
	}
	for _, ok := range s.Edges {
		if ok {
			c.Edges++
		}
	}
	return c
}

// Evaluate returns the objective value of sel under p.
func Evaluate(p *Problem, sel *Selection) float64 {
	var v float64
	for e, ok := range sel.Edges {
		if ok {
			v += p.Weights.Edge(e).Weight
		}
	}
	for i := range p.N() {
		if sel.Divide[i] {
			v += p.Costs.Division
		}
		if sel.Appear[i] {
			v += p.appearCost(i)
		}
		if sel.Disappear[i] {
			v += p.disappearCost(i)
		}
		if sel.Nodes[i] {
			v -= p.penalty(i)
		}
	}
	return v
}

// Verify checks that sel is a valid selection for p: slice lengths match,
// hierarchy exclusivity holds, and every node's flags agree with its
// selected edges. It returns an INTERNAL_ERROR describing the first
// violation.
func Verify(p *Problem, sel *Selection) error {
	n, ne := p.N(), p.Weights.Len()
	for _, l := range []int{len(sel.Nodes), len(sel.Appear), len(sel.Disappear), len(sel.Divide)} {
		if l != n {
			return violation("node slices have length %d, want %d", l, n)
		}
	}
	if len(sel.Edges) != ne {
		return violation("edge slice has length %d, want %d", len(sel.Edges), ne)
	}

	for e, ok := range sel.Edges {
		if !ok {
			continue
		}
		edge := p.Weights.Edge(e)
		if !sel.Nodes[edge.Source] || !sel.Nodes[edge.Target] {
			return violation("edge %d->%d selected between unselected nodes", edge.Source, edge.Target)
		}
	}

	for i := range n {
		if !sel.Nodes[i] {
			if sel.Appear[i] || sel.Disappear[i] || sel.Divide[i] {
				return violation("unselected node %d carries event flags", i)
			}
			continue
		}
		for _, a := range p.Sequence.Ancestors(i) {
			if sel.Nodes[a] {
				return violation("node %d selected together with its ancestor %d", i, a)
			}
		}
		in, out := sel.degree(p.Weights, i)
		switch {
		case in > 1:
			return violation("node %d has %d incoming edges", i, in)
		case sel.Appear[i] != (in == 0):
			return violation("node %d: appear=%v with %d incoming edges", i, sel.Appear[i], in)
		case out > 2:
			return violation("node %d has %d outgoing edges", i, out)
		case sel.Disappear[i] != (out == 0):
			return violation("node %d: disappear=%v with %d outgoing edges", i, sel.Disappear[i], out)
		case sel.Divide[i] != (out == 2):
			return violation("node %d: divide=%v with %d outgoing edges", i, sel.Divide[i], out)
		}
	}
	return nil
}

func violation(format string, args ...any) error {
	return bterrors.New(bterrors.ErrCodeInternal, "invalid selection: %s", fmt.Sprintf(format, args...))
}
