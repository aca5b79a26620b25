// Package tracking selects segmentation candidates and links them into
// lineages across frames.
//
// # Problem
//
// A [Problem] bundles a labeled [hierarchy.Sequence], the affinity
// [affinity.Matrix] between adjacent frames, an optional per-node penalty
// and the event [Costs]. A [Solver] returns a [Selection]: the chosen nodes,
// the chosen edges (aligned to the matrix's edge indices) and per-node
// appear/disappear/divide flags.
//
// Every selection produced by this package satisfies, and [Verify] checks:
//
//  1. At most one node of any frame-local ancestor chain is selected.
//  2. A selected node has exactly one selected incoming edge or appears,
//     never both.
//  3. A selected node has one selected outgoing edge, two (division) or none
//     (disappearance); divide is set iff two are selected.
//  4. Unselected nodes carry no flags and no selected edges.
//
// The objective maximized is
//
//	Σ weight·edge + Σ Division·divide + Σ Appear·appear + Σ Disappear·disappear
//	  − Σ penalty·node
//
// where appearance is free in the first frame and disappearance is free in
// the last.
//
// # Solvers
//
// [MIP] formulates the problem as a binary integer program and solves it
// with package milp to proven optimality, or to the best incumbent within
// the configured limits. [Graph] is a greedy steepest-ascent heuristic over
// the layered frame graph: it repeatedly applies the most profitable of
// four moves (start a new longest-path track, divide a track, extend a
// track, link two tracks) until none improves the objective. It is fast,
// never worse than the empty selection, and gives no optimality
// certificate. By default MIP uses the Graph result as its warm start.
package tracking
