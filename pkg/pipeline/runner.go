package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/cache"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	pkgio "github.com/matzehuels/bactrack/pkg/io"
	"github.com/matzehuels/bactrack/pkg/lineage"
	"github.com/matzehuels/bactrack/pkg/observability"
	"github.com/matzehuels/bactrack/pkg/render"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// Cache key types reported to observability hooks.
const (
	keyTypeWeights = "weights"
	keyTypeSolve   = "solve"
)

// Runner executes the pipeline with caching. It holds no per-run state, so
// one Runner may serve concurrent runs on distinct sequences.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching, a nil keyer
// means cache.DefaultKeyer and a nil logger means log.Default().
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Execute runs every stage on seq. The sequence is labeled in place; nothing
// else about it is modified.
func (r *Runner) Execute(ctx context.Context, seq *hierarchy.Sequence, opts Options) (*Result, error) {
	if seq == nil {
		return nil, bterrors.New(bterrors.ErrCodeInvalidInput, "no sequence")
	}
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	res := &Result{RunID: uuid.NewString(), Sequence: seq}
	logger.Debug("starting run", "run_id", res.RunID, "solver", opts.Solver, "weights", opts.Weights.Variant)

	// Stage 1: Label
	start := time.Now()
	n, err := seq.Label()
	res.Stats.LabelTime = time.Since(start)
	observability.Pipeline().OnLabelComplete(ctx, seq.FrameCount(), n, res.Stats.LabelTime, err)
	if err != nil {
		return nil, err
	}
	res.Stats.Frames = seq.FrameCount()
	res.Stats.Nodes = n
	res.Stats.Depth = seq.Depth()
	logger.Info("labeled sequence",
		"frames", res.Stats.Frames,
		"nodes", n,
		"depth", res.Stats.Depth)

	if res.SequenceHash, err = HashSequence(seq); err != nil {
		logger.Warn("sequence not hashable, caching disabled", "err", err)
	}

	// Stage 2: Weights
	start = time.Now()
	m, hit, err := r.WeightsWithCacheInfo(ctx, seq, res.SequenceHash, opts)
	res.Stats.WeightsTime = time.Since(start)
	if err != nil {
		return nil, err
	}
	res.Weights = m
	res.Stats.Edges = m.Len()
	res.CacheInfo.WeightsHit = hit
	logger.Info("built weights",
		"variant", opts.Weights.Variant,
		"edges", m.Len(),
		"cached", hit,
		"duration", res.Stats.WeightsTime)

	// Stage 3: Penalty
	if opts.Penalty != nil {
		if res.Penalty, err = affinity.Penalty(seq, *opts.Penalty); err != nil {
			return nil, err
		}
	}

	// Stage 4: Solve
	p := &tracking.Problem{Sequence: seq, Weights: m, Penalty: res.Penalty, Costs: opts.Costs}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start = time.Now()
	sel, hit, err := r.SolveWithCacheInfo(ctx, p, r.solveKey(res, opts), opts)
	res.Stats.SolveTime = time.Since(start)
	if err != nil {
		return nil, err
	}
	res.Selection = sel
	res.CacheInfo.SolveHit = hit
	counts := sel.Counts()
	logger.Info("solved",
		"solver", sel.Solver,
		"objective", sel.Objective,
		"exact", sel.Exact,
		"gap", sel.Gap,
		"selected", counts.Nodes,
		"divisions", counts.Divisions,
		"cached", hit,
		"duration", res.Stats.SolveTime)

	// Stage 5: Lineage
	start = time.Now()
	if res.Lineage, err = lineage.Build(seq, m, sel); err != nil {
		return nil, err
	}
	res.Stats.LineageTime = time.Since(start)
	logger.Debug("built lineage", "links", len(res.Lineage.Links), "tracks", len(res.Lineage.Tracks))

	// Stage 6: Artifacts
	start = time.Now()
	if res.Artifacts, err = r.Artifacts(ctx, res, opts); err != nil {
		return nil, err
	}
	res.Stats.RenderTime = time.Since(start)
	if len(opts.Formats) > 0 {
		logger.Info("rendered outputs", "formats", opts.Formats, "duration", res.Stats.RenderTime)
	}
	return res, nil
}

// WeightsWithCacheInfo builds the affinity matrix of a labeled sequence,
// consulting the cache when seqHash is set. It reports whether the matrix
// came from the cache.
func (r *Runner) WeightsWithCacheInfo(ctx context.Context, seq *hierarchy.Sequence, seqHash string, opts Options) (*affinity.Matrix, bool, error) {
	r.applyLogger(&opts)
	key := ""
	if seqHash != "" {
		key = r.Keyer.WeightsKey(seqHash, cache.WeightKeyOpts{
			Variant:   opts.Weights.Variant.String(),
			Threshold: opts.Weights.Threshold,
			Scale:     opts.Weights.Scale,
			MinWeight: opts.Weights.MinWeight,
		})
	}

	if key != "" && !opts.Refresh {
		if data, ok := r.lookup(ctx, key, keyTypeWeights, opts.Logger); ok {
			var edges []affinity.Edge
			if err := json.Unmarshal(data, &edges); err == nil {
				if m, err := affinity.NewMatrix(seq.Len(), edges); err == nil {
					return m, true, nil
				}
			}
			opts.Logger.Debug("discarding unreadable cached weights", "key", key)
		}
	}

	start := time.Now()
	m, err := affinity.Build(ctx, seq, opts.Weights)
	observability.Pipeline().OnWeightsComplete(ctx, opts.Weights.Variant.String(), edgeCount(m), time.Since(start), err)
	if err != nil {
		return nil, false, err
	}
	if key != "" {
		if data, err := json.Marshal(m.Edges()); err == nil {
			r.store(ctx, key, keyTypeWeights, data, opts)
		}
	}
	return m, false, nil
}

// SolveWithCacheInfo solves p and verifies the selection. A cached selection
// is only used if it still verifies against p. An empty key disables the
// cache.
func (r *Runner) SolveWithCacheInfo(ctx context.Context, p *tracking.Problem, key string, opts Options) (*tracking.Selection, bool, error) {
	r.applyLogger(&opts)
	if key != "" && !opts.Refresh {
		if data, ok := r.lookup(ctx, key, keyTypeSolve, opts.Logger); ok {
			var sel tracking.Selection
			if err := json.Unmarshal(data, &sel); err == nil && tracking.Verify(p, &sel) == nil {
				return &sel, true, nil
			}
			opts.Logger.Debug("discarding invalid cached selection", "key", key)
		}
	}

	solver, err := tracking.New(opts.Solver, opts.SolverOptions)
	if err != nil {
		return nil, false, err
	}
	name := solver.Variant().String()
	observability.Pipeline().OnSolveStart(ctx, name, p.N(), p.Weights.Len())
	start := time.Now()
	sel, err := solver.Solve(ctx, p)
	if err == nil {
		err = tracking.Verify(p, sel)
	}
	var objective float64
	var exact bool
	if sel != nil {
		objective, exact = sel.Objective, sel.Exact
	}
	observability.Pipeline().OnSolveComplete(ctx, name, objective, exact, time.Since(start), err)
	if err != nil {
		return nil, false, err
	}

	if key != "" {
		if data, err := json.Marshal(sel); err == nil {
			r.store(ctx, key, keyTypeSolve, data, opts)
		}
	}
	return sel, false, nil
}

// Artifacts renders the formats requested in opts from a completed result.
func (r *Runner) Artifacts(ctx context.Context, res *Result, opts Options) (map[string][]byte, error) {
	out := make(map[string][]byte, len(opts.Formats))
	var dot string
	for _, f := range opts.Formats {
		var buf bytes.Buffer
		var err error
		switch f {
		case FormatJSON:
			err = pkgio.WriteReport(res.Report(), &buf)
		case FormatCSV:
			err = pkgio.WriteLinksCSV(res.Lineage.Links, &buf)
		case FormatTracks:
			err = pkgio.WriteTracks(res.Lineage.Tracks, &buf)
		case FormatDOT, FormatSVG:
			if dot == "" {
				dot = render.ToDOT(res.Sequence, res.Weights, res.Selection, res.Lineage, opts.Render)
			}
			if f == FormatDOT {
				buf.WriteString(dot)
				break
			}
			var svg []byte
			if svg, err = render.RenderSVG(ctx, dot); err == nil {
				buf.Write(svg)
			}
		default:
			err = bterrors.InvalidChoice("format", f, ValidFormats)
		}
		if err != nil {
			return nil, bterrors.Wrap(bterrors.ErrCodeInternal, err, "render %s", f)
		}
		out[f] = buf.Bytes()
	}
	return out, nil
}

// HashSequence returns the content hash of a sequence's canonical JSON
// encoding. Equal hashes imply equal candidates, regions and scores.
func HashSequence(seq *hierarchy.Sequence) (string, error) {
	var buf bytes.Buffer
	if err := pkgio.WriteSequence(seq, &buf); err != nil {
		return "", err
	}
	return cache.Hash(buf.Bytes()), nil
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) solveKey(res *Result, opts Options) string {
	if res.SequenceHash == "" {
		return ""
	}
	weightsHash, err := cache.HashJSON(res.Weights.Edges())
	if err != nil {
		return ""
	}
	var penaltyHash string
	if res.Penalty != nil {
		if penaltyHash, err = cache.HashJSON(res.Penalty); err != nil {
			return ""
		}
	}
	return r.Keyer.SolveKey(res.SequenceHash, cache.SolveKeyOpts{
		Solver:      opts.Solver.String(),
		Division:    opts.Costs.Division,
		Appear:      opts.Costs.Appear,
		Disappear:   opts.Costs.Disappear,
		WeightsHash: weightsHash,
		PenaltyHash: penaltyHash,
		TimeLimit:   opts.SolverOptions.TimeLimit,
		GapLimit:    opts.SolverOptions.GapLimit,
		NodeLimit:   opts.SolverOptions.NodeLimit,
	})
}

// lookup reads key and reports the outcome to the cache hooks. Backend
// errors count as misses.
func (r *Runner) lookup(ctx context.Context, key, keyType string, logger *log.Logger) ([]byte, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		logger.Debug("cache read failed", "type", keyType, "err", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return data, true
}

func (r *Runner) store(ctx context.Context, key, keyType string, data []byte, opts Options) {
	if err := r.Cache.Set(ctx, key, data, opts.CacheTTL); err != nil {
		opts.Logger.Debug("cache write failed", "type", keyType, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

func edgeCount(m *affinity.Matrix) int {
	if m == nil {
		return 0
	}
	return m.Len()
}
