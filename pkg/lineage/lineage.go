// Package lineage turns a tracking selection into an edge table and a
// track table.
//
// The edge table has one [Link] per selected edge plus one per costed
// appearance or disappearance (those outside the first and last frame). The
// track table follows the Cell Tracking Challenge convention: a track is a
// maximal chain of continuations, a division ends the parent track and
// starts one track per daughter, and each [Track] records its parent track.
package lineage

import (
	"cmp"
	"slices"

	"github.com/matzehuels/bactrack/pkg/affinity"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// Event classifies a link.
type Event int

const (
	Continuation Event = iota
	Division
	Appearance
	Disappearance
)

var eventNames = [...]string{
	Continuation:  "continuation",
	Division:      "division",
	Appearance:    "appearance",
	Disappearance: "disappearance",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// MarshalText encodes the event name.
func (e Event) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText decodes an event name.
func (e *Event) UnmarshalText(b []byte) error {
	for i, n := range eventNames {
		if n == string(b) {
			*e = Event(i)
			return nil
		}
	}
	return bterrors.InvalidChoice("lineage event", string(b), eventNames[:])
}

// None marks a missing parent or child in a [Link].
const None = -1

// Link is one row of the lineage edge table, ordered by frame. Frame is the child's frame, or
// the parent's frame for a disappearance.
type Link struct {
	Parent int   `json:"parent"`
	Child  int   `json:"child"`
	Frame  int   `json:"frame"`
	Event  Event `json:"event"`
}

// Track is one row of the track table. IDs start at 1; Parent is 0 for
// tracks that did not arise from a division.
type Track struct {
	ID     int   `json:"id"`
	Start  int   `json:"start"`
	End    int   `json:"end"`
	Parent int   `json:"parent"`
	Nodes  []int `json:"nodes"`
}

// Lineage is the formatted result of a solve.
type Lineage struct {
	Links  []Link  `json:"links"`
	Tracks []Track `json:"tracks"`

	// NodeTrack maps each node ID to its track ID, or 0 if unselected.
	NodeTrack []int `json:"node_track"`
}

// Build derives the lineage of sel. sel must belong to seq and m.
func Build(seq *hierarchy.Sequence, m *affinity.Matrix, sel *tracking.Selection) (*Lineage, error) {
	if err := seq.RequireLabeled(); err != nil {
		return nil, err
	}
	n := seq.Len()
	if len(sel.Nodes) != n || len(sel.Edges) != m.Len() || m.N() != n {
		return nil, bterrors.New(bterrors.ErrCodeInvalidInput,
			"selection covers %d nodes and %d edges, sequence has %d nodes and matrix %d edges",
			len(sel.Nodes), len(sel.Edges), n, m.Len())
	}

	l := &Lineage{NodeTrack: make([]int, n)}
	parentEdge := make([]int, n)
	for i := range parentEdge {
		parentEdge[i] = -1
	}
	for e, ok := range sel.Edges {
		if !ok {
			continue
		}
		edge := m.Edge(e)
		parentEdge[edge.Target] = e
		ev := Continuation
		if sel.Divide[edge.Source] {
			ev = Division
		}
		l.Links = append(l.Links, Link{Parent: edge.Source, Child: edge.Target, Frame: seq.Frame(edge.Target), Event: ev})
	}

	last := seq.FrameCount() - 1
	for i := range n {
		if !sel.Nodes[i] {
			continue
		}
		frame := seq.Frame(i)
		if sel.Appear[i] && frame > 0 {
			l.Links = append(l.Links, Link{Parent: None, Child: i, Frame: frame, Event: Appearance})
		}
		if sel.Disappear[i] && frame < last {
			l.Links = append(l.Links, Link{Parent: i, Child: None, Frame: frame, Event: Disappearance})
		}

		// IDs increase with frame, so a node's predecessor already has a track.
		if e := parentEdge[i]; e >= 0 {
			src := m.Edge(e).Source
			if !sel.Divide[src] {
				t := &l.Tracks[l.NodeTrack[src]-1]
				t.End = frame
				t.Nodes = append(t.Nodes, i)
				l.NodeTrack[i] = t.ID
				continue
			}
			l.newTrack(i, frame, l.NodeTrack[src])
			continue
		}
		l.newTrack(i, frame, 0)
	}
	slices.SortStableFunc(l.Links, func(a, b Link) int { return cmp.Compare(a.Frame, b.Frame) })
	return l, nil
}

func (l *Lineage) newTrack(node, frame, parent int) {
	id := len(l.Tracks) + 1
	l.Tracks = append(l.Tracks, Track{ID: id, Start: frame, End: frame, Parent: parent, Nodes: []int{node}})
	l.NodeTrack[node] = id
}

// Divisions returns the links of kind Division.
func (l *Lineage) Divisions() []Link {
	var out []Link
	for _, k := range l.Links {
		if k.Event == Division {
			out = append(out, k)
		}
	}
	return out
}
