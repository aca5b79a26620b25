package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/bactrack/pkg/buildinfo"
	"github.com/matzehuels/bactrack/pkg/cache"
	"github.com/matzehuels/bactrack/pkg/config"
	"github.com/matzehuels/bactrack/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "bactrack"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	cfgPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "bactrack selects cell lineages from nested segmentation candidates",
		Long: `bactrack links segmentation candidates across the frames of a time-lapse
into cell lineages. Every frame offers a hierarchy of nested candidates; the
solver picks at most one candidate per chain and the links between frames
that maximize total affinity, accounting for divisions, appearances and
disappearances.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "config file (default: user config dir)")

	root.AddCommand(c.trackCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())
	registerCompletions(root)

	return root
}

// =============================================================================
// Config & Runner Factory
// =============================================================================

// loadConfig reads the --config file, or the default file if present.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	c.Logger.Debug("loaded config", "path", c.cfgPath, "solver", cfg.Solver.Variant, "cache", cfg.Cache.Backend)
	return cfg, nil
}

// newRunner creates a pipeline runner on the configured cache backend.
// An unreachable shared backend degrades to no caching.
func (c *CLI) newRunner(ctx context.Context, cfg config.Config, keyer cache.Keyer, noCache bool) *pipeline.Runner {
	return pipeline.NewRunner(c.openCache(ctx, cfg, noCache), keyer, c.Logger)
}

func (c *CLI) openCache(ctx context.Context, cfg config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	cc, err := cache.Open(ctx, cfg.CacheOptions())
	if err != nil {
		c.Logger.Warn("cache unavailable, continuing without", "backend", cfg.Cache.Backend, "err", err)
		return cache.NewNullCache()
	}
	return cc
}
