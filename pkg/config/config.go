// Package config loads and validates bactrack run configuration.
//
// Configuration is a TOML document with one table per concern:
//
//	[costs]
//	division  = -0.2
//	appear    = -1.0
//	disappear = -1.0
//
//	[solver]
//	variant    = "mip"
//	time_limit = "30s"
//	gap_limit  = 0.0
//	warm_start = true
//
//	[weight]
//	variant            = "overlap"
//	distance_threshold = 20.0
//
//	[penalty]
//	enabled  = false
//	min_size = 15
//
//	[cache]
//	backend = "file"
//	ttl     = "168h"
//
// Missing keys keep their [Default] values. Unknown keys are rejected so that
// typos surface before a long solve starts.
package config

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/cache"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/milp"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// FileName is the configuration file name inside the user config directory.
const FileName = "bactrack.toml"

// DefaultCacheTTL is how long solved selections stay cached.
const DefaultCacheTTL = cache.TTLSelection

// DefaultTimeLimit bounds every MIP solve unless the file sets time_limit.
// An explicit "0" removes the limit.
const DefaultTimeLimit = 30 * time.Second

// Duration is a time.Duration that reads and writes as a Go duration string.
type Duration struct {
	time.Duration
}

// MarshalText encodes the duration as "1m30s".
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a Go duration string. An empty string means zero.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return bterrors.Wrap(bterrors.ErrCodeInvalidConfig, err, "invalid duration %q", s)
	}
	d.Duration = v
	return nil
}

// Solver configures the tracking solver.
type Solver struct {
	Variant   string   `toml:"variant"`
	TimeLimit Duration `toml:"time_limit"`
	GapLimit  float64  `toml:"gap_limit"`
	NodeLimit int      `toml:"node_limit"`
	LPMaxVars int      `toml:"lp_max_vars"`
	WarmStart bool     `toml:"warm_start"`
}

// Weight configures affinity weight construction.
type Weight struct {
	Variant   string  `toml:"variant"`
	Threshold float64 `toml:"distance_threshold"`
	Scale     float64 `toml:"scale"`
	MinWeight float64 `toml:"min_weight"`
	Workers   int     `toml:"workers"`
}

// Penalty configures per-node penalties. Penalties are off unless Enabled.
type Penalty struct {
	Enabled        bool    `toml:"enabled"`
	MinSize        int     `toml:"min_size"`
	SizeCost       float64 `toml:"size_cost"`
	ConfidenceCost float64 `toml:"confidence_cost"`
}

// Cache configures the result cache.
type Cache struct {
	Backend       string   `toml:"backend"`
	Dir           string   `toml:"dir"`
	TTL           Duration `toml:"ttl"`
	RedisAddr     string   `toml:"redis_addr"`
	MongoURI      string   `toml:"mongo_uri"`
	MongoDatabase string   `toml:"mongo_database"`
}

// Config is the complete run configuration.
type Config struct {
	Costs   tracking.Costs `toml:"costs"`
	Solver  Solver         `toml:"solver"`
	Weight  Weight         `toml:"weight"`
	Penalty Penalty        `toml:"penalty"`
	Cache   Cache          `toml:"cache"`
}

// Default returns the built-in configuration.
func Default() Config {
	pp := affinity.DefaultPenaltyParams()
	return Config{
		Costs: tracking.DefaultCosts(),
		Solver: Solver{
			Variant:   tracking.MIP.String(),
			TimeLimit: Duration{DefaultTimeLimit},
			LPMaxVars: milp.DefaultLPMaxVars,
			WarmStart: true,
		},
		Weight: Weight{
			Variant:   affinity.Overlap.String(),
			Threshold: affinity.DefaultDistanceThreshold,
			Scale:     1,
		},
		Penalty: Penalty{
			MinSize:        pp.MinSize,
			SizeCost:       pp.SizeCost,
			ConfidenceCost: pp.ConfidenceCost,
		},
		Cache: Cache{
			Backend:       cache.BackendFile,
			TTL:           Duration{DefaultCacheTTL},
			RedisAddr:     "localhost:6379",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "bactrack",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/bactrack/bactrack.toml or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", bterrors.Wrap(bterrors.ErrCodeInvalidConfig, err, "user config dir")
	}
	return filepath.Join(dir, "bactrack", FileName), nil
}

// Load reads the file at path on top of the defaults. A missing file is not
// an error when path is the default location; any explicit path must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Default(), nil
		}
		path = p
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return Config{}, bterrors.Wrap(bterrors.ErrCodeInvalidConfig, err, "open %s", path)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, bterrors.Wrap(bterrors.ErrCodeInvalidConfig, err, "load %s", path)
	}
	return cfg, nil
}

// Decode parses a TOML document on top of the defaults and validates it.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, bterrors.Wrap(bterrors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, bterrors.New(bterrors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes the configuration as TOML.
func (c Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return bterrors.Wrap(bterrors.ErrCodeInternal, err, "encode config")
	}
	return nil
}

// Validate checks every section. Variant names are resolved here so that an
// unknown solver or weight fails before any sequence is touched.
func (c Config) Validate() error {
	if err := c.Costs.Validate(); err != nil {
		return err
	}
	if _, err := c.SolverVariant(); err != nil {
		return err
	}
	if c.Solver.TimeLimit.Duration < 0 {
		return bterrors.New(bterrors.ErrCodeInvalidConfig, "solver time limit must not be negative, got %s", c.Solver.TimeLimit)
	}
	if err := bterrors.ValidateNonNegative("solver gap limit", c.Solver.GapLimit); err != nil {
		return err
	}
	if c.Solver.NodeLimit < 0 {
		return bterrors.New(bterrors.ErrCodeInvalidConfig, "solver node limit must not be negative, got %d", c.Solver.NodeLimit)
	}
	wp, err := c.WeightParams()
	if err != nil {
		return err
	}
	if err := wp.ValidateAndSetDefaults(); err != nil {
		return err
	}
	if err := c.PenaltyParams().Validate(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case cache.BackendNone, cache.BackendFile, cache.BackendRedis, cache.BackendMongo:
	default:
		return bterrors.InvalidChoice("cache backend", c.Cache.Backend,
			[]string{cache.BackendNone, cache.BackendFile, cache.BackendRedis, cache.BackendMongo})
	}
	if c.Cache.TTL.Duration < 0 {
		return bterrors.New(bterrors.ErrCodeInvalidConfig, "cache ttl must not be negative, got %s", c.Cache.TTL)
	}
	return nil
}

// SolverVariant resolves the configured solver name.
func (c Config) SolverVariant() (tracking.Variant, error) {
	return tracking.ParseVariant(c.Solver.Variant)
}

// SolverOptions converts the solver section into tracking options.
func (c Config) SolverOptions() tracking.Options {
	return tracking.Options{
		TimeLimit: c.Solver.TimeLimit.Duration,
		GapLimit:  c.Solver.GapLimit,
		NodeLimit: c.Solver.NodeLimit,
		LPMaxVars: c.Solver.LPMaxVars,
		WarmStart: c.Solver.WarmStart,
	}
}

// WeightParams converts the weight section into builder parameters.
func (c Config) WeightParams() (affinity.Params, error) {
	v, err := affinity.ParseVariant(c.Weight.Variant)
	if err != nil {
		return affinity.Params{}, err
	}
	return affinity.Params{
		Variant:   v,
		Threshold: c.Weight.Threshold,
		Scale:     c.Weight.Scale,
		MinWeight: c.Weight.MinWeight,
		Workers:   c.Weight.Workers,
	}, nil
}

// PenaltyParams converts the penalty section. The result is meaningful
// whether or not penalties are enabled.
func (c Config) PenaltyParams() affinity.PenaltyParams {
	return affinity.PenaltyParams{
		MinSize:        c.Penalty.MinSize,
		SizeCost:       c.Penalty.SizeCost,
		ConfidenceCost: c.Penalty.ConfidenceCost,
	}
}

// CacheOptions converts the cache section for [cache.Open].
func (c Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend:       c.Cache.Backend,
		Dir:           c.Cache.Dir,
		RedisAddr:     c.Cache.RedisAddr,
		MongoURI:      c.Cache.MongoURI,
		MongoDatabase: c.Cache.MongoDatabase,
	}
}
