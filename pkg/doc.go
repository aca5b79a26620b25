// Package pkg provides the core libraries of bactrack, a lineage selection
// engine for time-lapse cell tracking.
//
// # Overview
//
// An upstream segmentation step proposes, for every frame, a forest of
// nested candidate regions. bactrack links candidates across consecutive
// frames and selects the set of candidates, links and events (divisions,
// appearances, disappearances) that maximizes total affinity while keeping
// at most one candidate per nesting chain.
//
// # Architecture
//
// The typical data flow:
//
//	sequence JSON
//	      ↓
//	[io] package (decode frames and candidate forests)
//	      ↓
//	[hierarchy] package (label: global IDs, ancestry, features)
//	      ↓
//	[affinity] package (cross-frame weights, per-node penalties)
//	      ↓
//	[tracking] package (MIP or graph solver, via [milp])
//	      ↓
//	[lineage] package (links and tracks)
//	      ↓
//	[io] / [render] packages (JSON, CSV, track table, DOT, SVG)
//
// [pipeline] runs these stages with caching ([cache]), configuration
// ([config]) and instrumentation ([observability]).
//
// # Quick Start
//
//	seq, _ := io.ImportSequence("seq.json")
//	if _, err := seq.Label(); err != nil {
//	    return err
//	}
//	m, _ := affinity.Build(ctx, seq, affinity.Params{Variant: affinity.Overlap})
//	solver, _ := tracking.New(tracking.MIP, tracking.DefaultOptions())
//	sel, _ := solver.Solve(ctx, &tracking.Problem{
//	    Sequence: seq,
//	    Weights:  m,
//	    Costs:    tracking.DefaultCosts(),
//	})
//	lin, _ := lineage.Build(seq, m, sel)
//
// # Main Packages
//
//   - [hierarchy]: candidate forests, labeling and ancestry queries
//   - [affinity]: overlap, IoU and distance weights; penalties
//   - [milp]: integer programs solved by LP-based branch and bound
//   - [tracking]: the selection problem and its two solvers
//   - [lineage]: link and track tables of a selection
//   - [io]: sequence, report, CSV and track-table formats
//   - [render]: Graphviz lineage graphs
//   - [pipeline]: end-to-end runs shared by the CLI and the API server
//   - [cache]: null, file, Redis and MongoDB result caches
//   - [config]: TOML configuration
//   - [errors]: coded errors
//   - [observability]: hooks for metrics and tracing
//   - [buildinfo]: version information
package pkg
