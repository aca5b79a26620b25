package io

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/matzehuels/bactrack/pkg/affinity"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/lineage"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

// Report is the JSON result of one solve.
type Report struct {
	RunID     string           `json:"run_id,omitempty"`
	Solver    tracking.Variant `json:"solver"`
	Objective float64          `json:"objective"`
	Bound     float64          `json:"bound,omitempty"`
	Gap       float64          `json:"gap,omitempty"`
	Exact     bool             `json:"exact"`
	CacheHit  bool             `json:"cache_hit,omitempty"`

	Nodes  []int           `json:"nodes"`
	Edges  []affinity.Edge `json:"edges"`
	Counts tracking.Counts `json:"counts"`

	Links  []lineage.Link  `json:"links"`
	Tracks []lineage.Track `json:"tracks"`

	Stats tracking.Stats `json:"stats"`
}

// NewReport collects the reportable parts of a solve. sel must have been
// computed on m, and lin derived from sel.
func NewReport(m *affinity.Matrix, sel *tracking.Selection, lin *lineage.Lineage) *Report {
	r := &Report{
		Solver:    sel.Solver,
		Objective: sel.Objective,
		Bound:     sel.Bound,
		Gap:       sel.Gap,
		Exact:     sel.Exact,
		Nodes:     sel.NodeIDs(),
		Edges:     sel.EdgeList(m),
		Counts:    sel.Counts(),
		Links:     lin.Links,
		Tracks:    lin.Tracks,
		Stats:     sel.Stats,
	}
	// Empty results encode as [] rather than null.
	if r.Nodes == nil {
		r.Nodes = []int{}
	}
	if r.Edges == nil {
		r.Edges = []affinity.Edge{}
	}
	if r.Links == nil {
		r.Links = []lineage.Link{}
	}
	if r.Tracks == nil {
		r.Tracks = []lineage.Track{}
	}
	return r
}

// WriteReport encodes r as indented JSON.
func WriteReport(r *Report, w io.Writer) error {
	return encodeJSON(w, r)
}

// ExportReport writes r to a JSON file at path.
func ExportReport(r *Report, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteReport(r, w) })
}

// WriteLinksCSV writes the lineage link table as CSV.
func WriteLinksCSV(links []lineage.Link, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"parent", "child", "frame", "event"}); err != nil {
		return err
	}
	for _, l := range links {
		row := []string{
			strconv.Itoa(l.Parent),
			strconv.Itoa(l.Child),
			strconv.Itoa(l.Frame),
			l.Event.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportLinksCSV writes the link table to a CSV file at path.
func ExportLinksCSV(links []lineage.Link, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteLinksCSV(links, w) })
}

// WriteTracks writes the track table in res_track.txt layout.
func WriteTracks(tracks []lineage.Track, w io.Writer) error {
	for _, t := range tracks {
		if _, err := fmt.Fprintf(w, "%d %d %d %d\n", t.ID, t.Start, t.End, t.Parent); err != nil {
			return err
		}
	}
	return nil
}

// ExportTracks writes the track table to path.
func ExportTracks(tracks []lineage.Track, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteTracks(tracks, w) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return bterrors.Wrap(bterrors.ErrCodeInvalidInput, err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
