package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/config"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	pkgio "github.com/matzehuels/bactrack/pkg/io"
	"github.com/matzehuels/bactrack/pkg/pipeline"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// outputNames maps each format to its file name in the output directory.
var outputNames = map[string]string{
	pipeline.FormatJSON:   "report.json",
	pipeline.FormatCSV:    "links.csv",
	pipeline.FormatTracks: "res_track.txt",
	pipeline.FormatDOT:    "lineage.dot",
	pipeline.FormatSVG:    "lineage.svg",
}

// defaultFormats are written when --format is not given.
const defaultFormats = "json,csv,tracks"

// trackFlags holds flags for the track command.
type trackFlags struct {
	output  string
	formats string

	solver    string
	weight    string
	division  float64
	appear    float64
	disappear float64
	penalty   bool

	timeLimit time.Duration
	gap       float64

	noCache        bool
	refresh        bool
	tui            bool
	showCandidates bool
	showWeights    bool
}

// trackCommand creates the track command.
func (c *CLI) trackCommand() *cobra.Command {
	flags := trackFlags{}

	cmd := &cobra.Command{
		Use:   "track <sequence.json>",
		Short: "Select cell lineages for a candidate sequence",
		Long: `Select the optimal set of candidates and links for a sequence and write
the results to the output directory:

  report.json    selection, events, links and tracks (json)
  links.csv      parent,child,frame,event rows (csv)
  res_track.txt  Cell Tracking Challenge track table (tracks)
  lineage.dot    Graphviz lineage graph (dot)
  lineage.svg    rendered lineage graph (svg)

Flags override the configuration file for this run.`,
		Example: `  bactrack track seq.json -o out
  bactrack track seq.json --solver graph --format json,svg
  bactrack track seq.json --division -0.5 --penalty --tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTrack(cmd, args[0], flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.output, "output", "o", ".", "output directory")
	f.StringVarP(&flags.formats, "format", "f", defaultFormats, "output formats: "+strings.Join(pipeline.ValidFormats, ", "))
	f.StringVar(&flags.solver, "solver", "", "solver: "+strings.Join(tracking.Variants(), ", "))
	f.StringVar(&flags.weight, "weight", "", "affinity weight: "+strings.Join(affinity.Variants(), ", "))
	f.Float64Var(&flags.division, "division", tracking.DefaultDivisionCost, "division cost")
	f.Float64Var(&flags.appear, "appear", tracking.DefaultAppearCost, "appearance cost")
	f.Float64Var(&flags.disappear, "disappear", tracking.DefaultDisappearCost, "disappearance cost")
	f.BoolVar(&flags.penalty, "penalty", false, "penalize small and low-confidence candidates")
	f.DurationVar(&flags.timeLimit, "time-limit", config.DefaultTimeLimit, "solver time limit (0 = none)")
	f.Float64Var(&flags.gap, "gap", 0, "stop once the relative optimality gap is below this value")
	f.BoolVar(&flags.noCache, "no-cache", false, "disable caching")
	f.BoolVar(&flags.refresh, "refresh", false, "ignore cached results")
	f.BoolVar(&flags.tui, "tui", false, "show live solver progress")
	f.BoolVar(&flags.showCandidates, "show-candidates", false, "draw unselected candidates in graphs")
	f.BoolVar(&flags.showWeights, "show-weights", false, "label graph links with their weights")

	cmd.MarkFlagsMutuallyExclusive("no-cache", "refresh")

	return cmd
}

func (c *CLI) runTrack(cmd *cobra.Command, input string, flags trackFlags) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	opts, err := trackOptions(cmd, cfg, flags)
	if err != nil {
		return err
	}

	seq, err := pkgio.ImportSequence(input)
	if err != nil {
		return err
	}
	logger.Debug("read sequence", "path", input, "frames", seq.FrameCount())

	runner := c.newRunner(ctx, cfg, nil, flags.noCache)
	defer runner.Close()

	prog := newProgress(logger)
	var res *pipeline.Result
	if flags.tui {
		res, err = runWithMonitor(ctx, runner, seq, opts)
	} else {
		res, err = runWithSpinner(ctx, runner, seq, opts)
	}
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Tracked %d frames", res.Stats.Frames))

	paths, err := writeArtifacts(flags.output, res)
	if err != nil {
		return err
	}

	printSuccess("Selected %d lineages", len(res.Lineage.Tracks))
	printStats(res.Stats.Frames, res.Stats.Nodes, res.Stats.Edges, res.CacheInfo.SolveHit)
	fmt.Fprintln(cmd.OutOrStdout(), summaryTable(res))
	for _, p := range paths {
		printFile(p)
	}
	if !res.Selection.Exact && res.Selection.Solver == tracking.MIP {
		printWarning("solve stopped before proving optimality (gap %.2f%%)", 100*res.Selection.Gap)
	}
	return nil
}

// trackOptions layers command-line overrides over the configuration.
func trackOptions(cmd *cobra.Command, cfg config.Config, flags trackFlags) (pipeline.Options, error) {
	f := cmd.Flags()
	if flags.solver != "" {
		cfg.Solver.Variant = flags.solver
	}
	if flags.weight != "" {
		cfg.Weight.Variant = flags.weight
	}
	if f.Changed("division") {
		cfg.Costs.Division = flags.division
	}
	if f.Changed("appear") {
		cfg.Costs.Appear = flags.appear
	}
	if f.Changed("disappear") {
		cfg.Costs.Disappear = flags.disappear
	}
	if flags.penalty {
		cfg.Penalty.Enabled = true
	}
	if f.Changed("time-limit") {
		cfg.Solver.TimeLimit = config.Duration{Duration: flags.timeLimit}
	}
	if f.Changed("gap") {
		cfg.Solver.GapLimit = flags.gap
	}

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts.Formats = parseFormats(flags.formats)
	if err := pipeline.ValidateFormats(opts.Formats); err != nil {
		return pipeline.Options{}, err
	}
	opts.Refresh = flags.refresh
	opts.Render.ShowCandidates = flags.showCandidates
	opts.Render.ShowWeights = flags.showWeights
	opts.Render.ShowEvents = true
	return opts, nil
}

// runWithSpinner executes the pipeline behind a spinner that shows the
// solver's branch-and-bound progress.
func runWithSpinner(ctx context.Context, runner *pipeline.Runner, seq *hierarchy.Sequence, opts pipeline.Options) (*pipeline.Result, error) {
	spinner := newSolveSpinner(ctx, fmt.Sprintf("Solving with %s", opts.Solver))
	opts.SolverOptions.Progress = spinner.update
	spinner.start()
	res, err := runner.Execute(ctx, seq, opts)
	spinner.stop()
	return res, err
}

// writeArtifacts writes every rendered artifact into dir and returns the
// written paths in format order.
func writeArtifacts(dir string, res *pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var paths []string
	for _, format := range pipeline.ValidFormats {
		data, ok := res.Artifacts[format]
		if !ok {
			continue
		}
		path := filepath.Join(dir, outputNames[format])
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if strings.TrimSpace(s) == "" {
		s = defaultFormats
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}
