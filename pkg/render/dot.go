package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	"github.com/matzehuels/bactrack/pkg/lineage"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// Options configures [ToDOT].
type Options struct {
	// ShowCandidates also draws unselected candidates and containment edges.
	ShowCandidates bool

	// ShowWeights labels selected edges with their affinity.
	ShowWeights bool

	// ShowEvents draws markers for appearances and disappearances.
	ShowEvents bool
}

// palette holds track colors, cycled by track ID.
var palette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

func trackColor(track int) string {
	return palette[(track-1)%len(palette)]
}

// ToDOT converts a solved lineage to Graphviz DOT source. sel must have been
// computed on seq and m, and lin derived from sel.
func ToDOT(seq *hierarchy.Sequence, m *affinity.Matrix, sel *tracking.Selection, lin *lineage.Lineage, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph lineage {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  newrank=true;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\", fontsize=12];\n")
	buf.WriteString("  edge [arrowsize=0.6];\n")
	buf.WriteString("  ranksep=0.8;\n")
	buf.WriteString("  nodesep=0.2;\n")

	for f := range seq.FrameCount() {
		nodes := seq.FrameNodes(f)
		fmt.Fprintf(&buf, "\n  subgraph cluster_frame_%d {\n", f)
		fmt.Fprintf(&buf, "    label=\"frame %d\";\n", f)
		buf.WriteString("    style=dashed;\n    color=grey70;\n    fontcolor=grey40;\n")
		var rank []string
		for _, n := range nodes {
			switch {
			case sel.Nodes[n.ID]:
				fmt.Fprintf(&buf, "    n%d [%s];\n", n.ID, strings.Join(selectedAttrs(n, lin.NodeTrack[n.ID]), ", "))
			case opts.ShowCandidates:
				fmt.Fprintf(&buf, "    n%d [label=\"%d\", style=\"rounded,dashed\", color=grey70, fontcolor=grey60];\n", n.ID, n.ID)
			default:
				continue
			}
			rank = append(rank, fmt.Sprintf("n%d", n.ID))
		}
		if len(rank) == 0 {
			// Keeps empty frames visible so the time axis stays regular.
			fmt.Fprintf(&buf, "    f%d [shape=point, style=invis];\n", f)
			rank = append(rank, fmt.Sprintf("f%d", f))
		}
		fmt.Fprintf(&buf, "    { rank=same; %s; }\n", strings.Join(rank, "; "))
		buf.WriteString("  }\n")
	}

	if opts.ShowCandidates {
		buf.WriteString("\n")
		for n := range seq.All() {
			if n.Parent != hierarchy.NoParent {
				fmt.Fprintf(&buf, "  n%d -> n%d [style=dotted, color=grey70, arrowhead=none];\n", n.Parent, n.ID)
			}
		}
	}

	buf.WriteString("\n")
	for e, ok := range sel.Edges {
		if !ok {
			continue
		}
		edge := m.Edge(e)
		attrs := []string{fmt.Sprintf("color=%q", trackColor(lin.NodeTrack[edge.Source]))}
		if sel.Divide[edge.Source] {
			attrs = append(attrs, "penwidth=2.5")
		}
		if opts.ShowWeights {
			attrs = append(attrs, fmt.Sprintf("label=\"%.2f\"", edge.Weight), "fontsize=9")
		}
		fmt.Fprintf(&buf, "  n%d -> n%d [%s];\n", edge.Source, edge.Target, strings.Join(attrs, ", "))
	}

	if opts.ShowEvents {
		for _, l := range lin.Links {
			switch l.Event {
			case lineage.Appearance:
				fmt.Fprintf(&buf, "  a%d [shape=point, color=\"#59a14f\"];\n  a%d -> n%d [style=dashed, color=\"#59a14f\"];\n", l.Child, l.Child, l.Child)
			case lineage.Disappearance:
				fmt.Fprintf(&buf, "  d%d [shape=point, color=\"#e15759\"];\n  n%d -> d%d [style=dashed, color=\"#e15759\"];\n", l.Parent, l.Parent, l.Parent)
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func selectedAttrs(n *hierarchy.Node, track int) []string {
	label := fmt.Sprintf("%d\\nT%d · %dpx", n.ID, track, n.Features.Size)
	return []string{
		fmt.Sprintf("label=\"%s\"", label),
		fmt.Sprintf("fillcolor=%q", trackColor(track)),
		"fontcolor=white",
		"color=white",
	}
}
