// Package pipeline runs the complete tracking pipeline for one sequence.
//
// The CLI and the API server both go through [Runner] so that caching,
// logging and validation behave the same at every entry point.
//
// # Stages
//
//  1. Validate: resolve the solver and weight variants and check every
//     parameter before the sequence is touched
//  2. Label: assign global node IDs and features
//  3. Weights: build the affinity matrix (cached)
//  4. Penalty: compute per-node penalties when enabled
//  5. Solve: run the configured solver and verify its selection (cached)
//  6. Lineage: derive the link and track tables
//  7. Artifacts: render the requested output formats
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	opts, err := pipeline.OptionsFromConfig(cfg)
//	opts.Formats = []string{pipeline.FormatJSON, pipeline.FormatSVG}
//	result, err := runner.Execute(ctx, seq, opts)
//	svg := result.Artifacts[pipeline.FormatSVG]
package pipeline

import (
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/cache"
	"github.com/matzehuels/bactrack/pkg/config"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	pkgio "github.com/matzehuels/bactrack/pkg/io"
	"github.com/matzehuels/bactrack/pkg/lineage"
	"github.com/matzehuels/bactrack/pkg/render"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// Output formats.
const (
	FormatJSON   = "json"   // Report document
	FormatCSV    = "csv"    // Link table
	FormatTracks = "tracks" // res_track.txt
	FormatDOT    = "dot"
	FormatSVG    = "svg"
)

// ValidFormats lists the accepted output formats in display order.
var ValidFormats = []string{FormatJSON, FormatCSV, FormatTracks, FormatDOT, FormatSVG}

// ValidateFormats rejects unknown formats.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if !slices.Contains(ValidFormats, f) {
			return bterrors.InvalidChoice("format", f, ValidFormats)
		}
	}
	return nil
}

// Options configures one pipeline run.
type Options struct {
	Solver        tracking.Variant `json:"solver"`
	SolverOptions tracking.Options `json:"-"`
	Weights       affinity.Params  `json:"-"`
	Costs         tracking.Costs   `json:"costs"`

	// Penalty enables per-node penalties when non-nil.
	Penalty *affinity.PenaltyParams `json:"-"`

	// Formats selects the artifacts to render. Empty means none.
	Formats []string       `json:"formats,omitempty"`
	Render  render.Options `json:"-"`

	// Refresh bypasses cache reads; results are still written.
	Refresh bool `json:"refresh,omitempty"`

	// CacheTTL bounds cached entries. Zero means cache.TTLSelection.
	CacheTTL time.Duration `json:"-"`

	Logger *log.Logger `json:"-"`
}

// OptionsFromConfig builds options from a validated configuration.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}
	v, err := cfg.SolverVariant()
	if err != nil {
		return Options{}, err
	}
	wp, err := cfg.WeightParams()
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Solver:        v,
		SolverOptions: cfg.SolverOptions(),
		Weights:       wp,
		Costs:         cfg.Costs,
		CacheTTL:      cfg.Cache.TTL.Duration,
	}
	if cfg.Penalty.Enabled {
		pp := cfg.PenaltyParams()
		opts.Penalty = &pp
	}
	return opts, nil
}

// ValidateAndSetDefaults checks every parameter and fills zero values. It
// runs before labeling so configuration errors never depend on the input.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Solver != tracking.MIP && o.Solver != tracking.Graph {
		return bterrors.InvalidChoice("solver", o.Solver.String(), tracking.Variants())
	}
	if err := o.Weights.ValidateAndSetDefaults(); err != nil {
		return err
	}
	if err := o.Costs.Validate(); err != nil {
		return err
	}
	if o.Penalty != nil {
		if err := o.Penalty.Validate(); err != nil {
			return err
		}
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = cache.TTLSelection
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// Result holds everything a run produced.
type Result struct {
	RunID        string
	SequenceHash string

	Sequence  *hierarchy.Sequence
	Weights   *affinity.Matrix
	Penalty   []float64
	Selection *tracking.Selection
	Lineage   *lineage.Lineage

	// Artifacts holds rendered outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Report returns the JSON report of the run.
func (r *Result) Report() *pkgio.Report {
	rep := pkgio.NewReport(r.Weights, r.Selection, r.Lineage)
	rep.RunID = r.RunID
	rep.CacheHit = r.CacheInfo.SolveHit
	return rep
}

// Stats contains sizes and stage timings.
type Stats struct {
	Frames      int
	Nodes       int
	Edges       int
	Depth       int
	LabelTime   time.Duration
	WeightsTime time.Duration
	SolveTime   time.Duration
	LineageTime time.Duration
	RenderTime  time.Duration
}

// CacheInfo records which cached stages hit.
type CacheInfo struct {
	WeightsHit bool
	SolveHit   bool
}
