// Package render draws a solved lineage as a Graphviz node-link diagram.
//
// # Overview
//
// [ToDOT] lays the selected candidates out left to right, one rank per
// frame, and colors each node by its track so that divisions and
// continuations read at a glance. Division links are drawn bold; appearance
// and disappearance are shown as small point markers when requested.
//
//	dot := render.ToDOT(seq, m, sel, lin, render.Options{ShowWeights: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// With [Options.ShowCandidates] the unselected candidates are drawn too,
// greyed out, with dotted containment edges from each candidate to its finer
// alternatives. This is mainly useful when debugging a segmentation
// hierarchy on short sequences.
//
// # Dependencies
//
// [RenderSVG] uses [github.com/goccy/go-graphviz], which runs Graphviz
// in-process, so no dot binary is needed.
package render
