package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/bactrack/internal/server"
	"github.com/matzehuels/bactrack/pkg/cache"
	"github.com/matzehuels/bactrack/pkg/pipeline"
)

// apiKeyPrefix separates API cache entries from CLI entries on shared backends.
const apiKeyPrefix = "api:"

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		opts    server.Options
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the tracking pipeline over HTTP.

  GET  /healthz    liveness and version
  POST /v1/track   body: sequence JSON; query: format, solver, weight,
                   division, appear, disappear, time_limit, refresh

The configuration file supplies the defaults of every request.`,
		Example: `  bactrack serve --addr :8080
  curl -s --data-binary @seq.json 'localhost:8080/v1/track?format=tracks'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			defaults, err := pipeline.OptionsFromConfig(cfg)
			if err != nil {
				return err
			}

			keyer := cache.NewScopedKeyer(nil, apiKeyPrefix)
			runner := c.newRunner(ctx, cfg, keyer, noCache)
			defer runner.Close()

			srv := server.New(runner, defaults, loggerFromContext(ctx), opts)
			return srv.ListenAndServe(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Addr, "addr", server.DefaultAddr, "listen address")
	f.DurationVar(&opts.RequestTimeout, "timeout", server.DefaultRequestTimeout, "per-request pipeline timeout")
	f.Int64Var(&opts.MaxBodyBytes, "max-body", server.DefaultMaxBodyBytes, "maximum request body size in bytes")
	f.BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}
