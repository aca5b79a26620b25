package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	pkgio "github.com/matzehuels/bactrack/pkg/io"
)

// frameSummary describes the candidate forest of one frame.
type frameSummary struct {
	Frame      int
	Roots      int
	Candidates int
	Depth      int
	MinSize    int
	MaxSize    int
	Links      int // affinity edges to the next frame
}

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var weight string

	cmd := &cobra.Command{
		Use:   "inspect <sequence.json>",
		Short: "Summarize the candidate hierarchies of a sequence",
		Long: `Inspect labels a sequence and prints one row per frame: root and total
candidate counts, hierarchy depth, candidate size range and the number of
affinity edges to the next frame.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if weight != "" {
				cfg.Weight.Variant = weight
			}
			params, err := cfg.WeightParams()
			if err != nil {
				return err
			}

			seq, err := pkgio.ImportSequence(args[0])
			if err != nil {
				return err
			}
			n, err := seq.Label()
			if err != nil {
				return err
			}
			m, err := affinity.Build(cmd.Context(), seq, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, StyleTitle.Render(args[0]))
			fmt.Fprintf(out, "%s frames · %s candidates · depth %s · %s %s edges\n",
				StyleNumber.Render(strconv.Itoa(seq.FrameCount())),
				StyleNumber.Render(strconv.Itoa(n)),
				StyleNumber.Render(strconv.Itoa(seq.Depth())),
				StyleNumber.Render(strconv.Itoa(m.Len())),
				params.Variant)
			fmt.Fprintln(out, frameTable(frameSummaries(seq, m)))
			return nil
		},
	}

	cmd.Flags().StringVar(&weight, "weight", "", "affinity weight used to count edges")
	return cmd
}

// frameSummaries computes per-frame statistics of a labeled sequence.
func frameSummaries(seq *hierarchy.Sequence, m *affinity.Matrix) []frameSummary {
	out := make([]frameSummary, seq.FrameCount())
	for f := range out {
		s := frameSummary{Frame: f}
		depth := map[int]int{}
		for _, node := range seq.FrameNodes(f) {
			s.Candidates++
			if node.IsRoot() {
				s.Roots++
				depth[node.ID] = 1
			} else {
				depth[node.ID] = depth[node.Parent] + 1
			}
			s.Depth = max(s.Depth, depth[node.ID])

			size := node.Features.Size
			if s.Candidates == 1 || size < s.MinSize {
				s.MinSize = size
			}
			s.MaxSize = max(s.MaxSize, size)
			s.Links += len(m.Out(node.ID))
		}
		out[f] = s
	}
	return out
}

func frameTable(rows []frameSummary) string {
	t := newTable("Frame", "Roots", "Candidates", "Depth", "Size", "Links")
	for _, r := range rows {
		size := "-"
		if r.Candidates > 0 {
			size = fmt.Sprintf("%d..%d", r.MinSize, r.MaxSize)
		}
		t.Row(
			strconv.Itoa(r.Frame),
			strconv.Itoa(r.Roots),
			strconv.Itoa(r.Candidates),
			strconv.Itoa(r.Depth),
			size,
			strconv.Itoa(r.Links),
		)
	}
	return t.Render()
}
