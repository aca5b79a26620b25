package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/pipeline"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// completionCommand prints a shell completion script. Beyond subcommands it
// completes solver, weight and format names and offers only .json files as
// sequence arguments.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for the given shell.

Completion covers the subcommands, the sequence file argument of track and
inspect, and the values of --solver, --weight and --format.

  $ source <(bactrack completion bash)
  $ bactrack completion zsh > "${fpath[1]}/_bactrack"
  $ bactrack completion fish > ~/.config/fish/completions/bactrack.fish
  PS> bactrack completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}

// registerCompletions attaches value completions to the track and inspect
// commands of root.
func registerCompletions(root *cobra.Command) {
	for _, name := range []string{"track", "inspect"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			continue
		}
		cmd.ValidArgsFunction = completeSequenceFile
		_ = cmd.RegisterFlagCompletionFunc("weight", fixedValues(affinity.Variants()))
	}
	if track, _, err := root.Find([]string{"track"}); err == nil && track != root {
		_ = track.RegisterFlagCompletionFunc("solver", fixedValues(tracking.Variants()))
		_ = track.RegisterFlagCompletionFunc("format", completeFormats)
	}
}

func completeSequenceFile(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"json"}, cobra.ShellCompDirectiveFilterFileExt
}

func fixedValues(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeFormats extends a comma-separated format list with the formats it
// does not name yet.
func completeFormats(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	prefix := ""
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix = toComplete[:i+1]
	}
	chosen := strings.Split(strings.ToLower(prefix), ",")
	var out []string
	for _, f := range pipeline.ValidFormats {
		if !slices.Contains(chosen, f) {
			out = append(out, prefix+f)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}
