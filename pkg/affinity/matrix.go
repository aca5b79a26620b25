package affinity

import (
	"cmp"
	"math"
	"slices"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

// Edge is a directed affinity from a candidate to a candidate of the next frame.
type Edge struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

// Matrix is a sparse N×N affinity matrix stored as sorted directed edges.
//
// A Matrix is immutable and safe for concurrent use.
type Matrix struct {
	n     int
	edges []Edge

	outStart []int // edges of source i are edges[outStart[i]:outStart[i+1]]
	outIdx   []int
	inStart  []int
	inIdx    []int // edge indices grouped by target, ascending within a group
}

// NewMatrix builds a matrix over n nodes. The edges are copied and sorted by
// (Source, Target). Out-of-range ids, self loops, duplicate pairs and
// non-finite weights are rejected with INVALID_INPUT.
func NewMatrix(n int, edges []Edge) (*Matrix, error) {
	if n < 0 {
		return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "matrix size must not be negative, got %d", n)
	}
	es := slices.Clone(edges)
	slices.SortFunc(es, compareEdges)

	for i, e := range es {
		switch {
		case e.Source < 0 || e.Source >= n || e.Target < 0 || e.Target >= n:
			return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "edge %d->%d outside [0, %d)", e.Source, e.Target, n)
		case e.Source == e.Target:
			return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "self loop on node %d", e.Source)
		case math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0):
			return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "edge %d->%d has non-finite weight", e.Source, e.Target)
		case i > 0 && compareEdges(es[i-1], e) == 0:
			return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "duplicate edge %d->%d", e.Source, e.Target)
		}
	}
	return newSortedMatrix(n, es), nil
}

func compareEdges(a, b Edge) int {
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	return cmp.Compare(a.Target, b.Target)
}

// newSortedMatrix indexes edges that are already sorted and valid.
func newSortedMatrix(n int, es []Edge) *Matrix {
	m := &Matrix{
		n:        n,
		edges:    es,
		outStart: make([]int, n+1),
		outIdx:   make([]int, len(es)),
		inStart:  make([]int, n+1),
		inIdx:    make([]int, len(es)),
	}
	for i, e := range es {
		m.outStart[e.Source+1]++
		m.inStart[e.Target+1]++
		m.outIdx[i] = i
	}
	for i := range n {
		m.outStart[i+1] += m.outStart[i]
		m.inStart[i+1] += m.inStart[i]
	}
	fill := slices.Clone(m.inStart[:n])
	for i, e := range es {
		m.inIdx[fill[e.Target]] = i
		fill[e.Target]++
	}
	return m
}

// N returns the number of nodes the matrix spans.
func (m *Matrix) N() int { return m.n }

// Len returns the number of stored edges.
func (m *Matrix) Len() int { return len(m.edges) }

// Edges returns every edge in (Source, Target) order. The slice must not be modified.
func (m *Matrix) Edges() []Edge { return m.edges }

// Edge returns the edge at index i.
func (m *Matrix) Edge(i int) Edge { return m.edges[i] }

// Out returns the indices of edges leaving node i.
func (m *Matrix) Out(i int) []int {
	if i < 0 || i >= m.n {
		return nil
	}
	return m.outIdx[m.outStart[i]:m.outStart[i+1]]
}

// In returns the indices of edges entering node i.
func (m *Matrix) In(i int) []int {
	if i < 0 || i >= m.n {
		return nil
	}
	return m.inIdx[m.inStart[i]:m.inStart[i+1]]
}

// Index returns the index of edge source->target, or -1 if absent.
func (m *Matrix) Index(source, target int) int {
	out := m.Out(source)
	if len(out) == 0 {
		return -1
	}
	base := out[0]
	k, ok := slices.BinarySearchFunc(m.edges[base:base+len(out)], target, func(e Edge, t int) int {
		return cmp.Compare(e.Target, t)
	})
	if !ok {
		return -1
	}
	return base + k
}

// Weight returns the weight of source->target, or 0 if the pair is not stored.
func (m *Matrix) Weight(source, target int) float64 {
	if i := m.Index(source, target); i >= 0 {
		return m.edges[i].Weight
	}
	return 0
}

// Dense expands the matrix into rows indexed by source.
func (m *Matrix) Dense() [][]float64 {
	rows := make([][]float64, m.n)
	for i := range rows {
		rows[i] = make([]float64, m.n)
	}
	for _, e := range m.edges {
		rows[e.Source][e.Target] = e.Weight
	}
	return rows
}

// CheckSequence verifies that the matrix spans exactly the labeled nodes of
// seq and that every edge points from frame t to frame t+1.
func (m *Matrix) CheckSequence(seq *hierarchy.Sequence) error {
	if err := seq.RequireLabeled(); err != nil {
		return err
	}
	if m.n != seq.Len() {
		return bterrors.New(bterrors.ErrCodeInvalidInput, "matrix spans %d nodes, sequence has %d", m.n, seq.Len())
	}
	for _, e := range m.edges {
		if fs, ft := seq.Frame(e.Source), seq.Frame(e.Target); ft != fs+1 {
			return bterrors.New(bterrors.ErrCodeInvalidInput,
				"edge %d->%d links frame %d to frame %d; only adjacent frames may be linked", e.Source, e.Target, fs, ft)
		}
	}
	return nil
}
