package io_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/bactrack/pkg/affinity"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
	pkgio "github.com/matzehuels/bactrack/pkg/io"
	"github.com/matzehuels/bactrack/pkg/lineage"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

const twoFrames = `{
  "width": 32,
  "frames": [
    {"nodes": [
      {"rect": [0, 0, 8, 4], "score": 0.9, "children": [
        {"rect": [0, 0, 4, 4], "score": 0.8},
        {"pixels": [4, 5, 6, 7], "score": 0.7}
      ]}
    ]},
    {"nodes": []},
    {"nodes": [{"rect": [0, 0, 8, 4]}]}
  ]
}`

func TestReadSequence(t *testing.T) {
	seq, err := pkgio.ReadSequence(strings.NewReader(twoFrames))
	if err != nil {
		t.Fatalf("ReadSequence() error = %v", err)
	}
	if seq.Labeled() {
		t.Error("ReadSequence should not label")
	}
	n, err := seq.Label()
	if err != nil {
		t.Fatalf("Label() error = %v", err)
	}
	if n != 4 || seq.FrameCount() != 3 {
		t.Fatalf("nodes, frames = %d, %d; want 4, 3", n, seq.FrameCount())
	}
	if got := seq.Node(0).Features.Size; got != 32 {
		t.Errorf("root size = %d, want 32", got)
	}
	if got := seq.Node(2).Region.Pixels(); len(got) != 4 || got[0] != 4 {
		t.Errorf("pixel child = %v", got)
	}
	if got := seq.Node(1).Score; got != 0.8 {
		t.Errorf("child score = %v, want 0.8", got)
	}
	if start, end := seq.FrameRange(1); start != end {
		t.Errorf("frame 1 should be empty, got [%d, %d)", start, end)
	}
}

func TestReadSequenceErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"width": 4, "frames": [`},
		{"zero width", `{"width": 0, "frames": []}`},
		{"no region", `{"width": 4, "frames": [{"nodes": [{"score": 1}]}]}`},
		{"both regions", `{"width": 4, "frames": [{"nodes": [{"rect": [0,0,1,1], "pixels": [0]}]}]}`},
		{"rect outside", `{"width": 4, "frames": [{"nodes": [{"rect": [0,0,5,1]}]}]}`},
		{"empty rect", `{"width": 4, "frames": [{"nodes": [{"rect": [2,0,2,1]}]}]}`},
		{"negative pixel", `{"width": 4, "frames": [{"nodes": [{"pixels": [-1]}]}]}`},
		{"bad child", `{"width": 4, "frames": [{"nodes": [{"pixels": [0], "children": [{}]}]}]}`},
		{"unknown field", `{"width": 4, "frames": [], "height": 3}`},
		{"huge rect", `{"width": 100000, "frames": [{"nodes": [{"rect": [0,0,100000,100000], "score": 1}]}]}`},
		{"too wide", `{"width": 16385, "frames": []}`},
		{"tall rect", `{"width": 4, "frames": [{"nodes": [{"rect": [0,0,4,16385]}]}]}`},
		{"pixel below image", `{"width": 4, "frames": [{"nodes": [{"pixels": [65536]}]}]}`},
		{"too many pixels", `{"width": 16384, "frames": [{"nodes": [{"rect": [0,0,16384,2048]}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pkgio.ReadSequence(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("ReadSequence() succeeded, want error")
			}
			if !bterrors.Is(err, bterrors.ErrCodeInvalidFormat) {
				t.Errorf("code = %v, want %v", bterrors.GetCode(err), bterrors.ErrCodeInvalidFormat)
			}
		})
	}
}

func TestReadSequenceLimits(t *testing.T) {
	lim := pkgio.Limits{MaxWidth: 8, MaxHeight: 8, MaxPixels: 10}
	ok := `{"width": 8, "frames": [{"nodes": [{"rect": [0,0,2,4]}, {"pixels": [0, 1]}]}]}`
	if _, err := pkgio.ReadSequenceLimits(strings.NewReader(ok), lim); err != nil {
		t.Fatalf("ReadSequenceLimits() error = %v", err)
	}

	over := `{"width": 8, "frames": [{"nodes": [{"rect": [0,0,2,4]}]}, {"nodes": [{"rect": [0,0,1,3]}]}]}`
	_, err := pkgio.ReadSequenceLimits(strings.NewReader(over), lim)
	if !bterrors.Is(err, bterrors.ErrCodeInvalidFormat) {
		t.Fatalf("error = %v, want %v", err, bterrors.ErrCodeInvalidFormat)
	}
	if !strings.Contains(err.Error(), "frame 1") {
		t.Errorf("error %q does not name frame 1", err)
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	seq, err := pkgio.ReadSequence(strings.NewReader(twoFrames))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "seq.json")
	if err := pkgio.ExportSequence(seq, path); err != nil {
		t.Fatalf("ExportSequence() error = %v", err)
	}
	back, err := pkgio.ImportSequence(path)
	if err != nil {
		t.Fatalf("ImportSequence() error = %v", err)
	}

	var a, b bytes.Buffer
	if err := pkgio.WriteSequence(seq, &a); err != nil {
		t.Fatal(err)
	}
	if err := pkgio.WriteSequence(back, &b); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Errorf("round trip changed the document:\n%s\nvs\n%s", a.String(), b.String())
	}
}

func TestImportSequenceMissing(t *testing.T) {
	_, err := pkgio.ImportSequence(filepath.Join(t.TempDir(), "nope.json"))
	if !bterrors.Is(err, bterrors.ErrCodeNotFound) {
		t.Errorf("ImportSequence(missing) = %v, want NOT_FOUND", err)
	}
}

func TestWriteSequenceMixedWidths(t *testing.T) {
	seq := hierarchy.NewSequence(
		hierarchy.NewHierarchy(hierarchy.NewNode(hierarchy.RectRegion(8, image.Rect(0, 0, 2, 2)), 1)),
		hierarchy.NewHierarchy(hierarchy.NewNode(hierarchy.RectRegion(16, image.Rect(0, 0, 2, 2)), 1)),
	)
	var buf bytes.Buffer
	if err := pkgio.WriteSequence(seq, &buf); err == nil {
		t.Error("WriteSequence() with mixed widths should fail")
	}
}

func TestReport(t *testing.T) {
	seq, err := pkgio.ReadSequence(strings.NewReader(`{
  "width": 16,
  "frames": [
    {"nodes": [{"rect": [0, 0, 4, 4], "score": 1}]},
    {"nodes": [{"rect": [0, 0, 4, 4], "score": 1}]}
  ]
}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seq.Label(); err != nil {
		t.Fatal(err)
	}
	m, err := affinity.Build(context.Background(), seq, affinity.Params{})
	if err != nil {
		t.Fatal(err)
	}
	p := &tracking.Problem{Sequence: seq, Weights: m, Costs: tracking.DefaultCosts()}
	sel, err := tracking.NewGraphSolver(tracking.DefaultOptions()).Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	lin, err := lineage.Build(seq, m, sel)
	if err != nil {
		t.Fatal(err)
	}

	rep := pkgio.NewReport(m, sel, lin)
	rep.RunID = "run-1"
	var buf bytes.Buffer
	if err := pkgio.WriteReport(rep, &buf); err != nil {
		t.Fatal(err)
	}

	var got pkgio.Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.RunID != "run-1" || got.Solver != tracking.Graph {
		t.Errorf("run id, solver = %q, %v", got.RunID, got.Solver)
	}
	if len(got.Nodes) != 2 || len(got.Edges) != 1 {
		t.Errorf("nodes, edges = %v, %v", got.Nodes, got.Edges)
	}
	if got.Objective != 1 {
		t.Errorf("objective = %v, want 1", got.Objective)
	}
	if len(got.Tracks) != 1 || got.Tracks[0].End != 1 {
		t.Errorf("tracks = %+v", got.Tracks)
	}
}

func TestReportEmptyArrays(t *testing.T) {
	seq := hierarchy.NewSequence()
	if _, err := seq.Label(); err != nil {
		t.Fatal(err)
	}
	m, _ := affinity.NewMatrix(0, nil)
	p := &tracking.Problem{Sequence: seq, Weights: m, Costs: tracking.DefaultCosts()}
	sel, err := tracking.NewGraphSolver(tracking.DefaultOptions()).Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	lin, err := lineage.Build(seq, m, sel)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := pkgio.WriteReport(pkgio.NewReport(m, sel, lin), &buf); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"nodes": []`, `"edges": []`, `"links": []`, `"tracks": []`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report lacks %s:\n%s", want, buf.String())
		}
	}
}

func TestWriteLinksCSV(t *testing.T) {
	links := []lineage.Link{
		{Parent: 0, Child: 1, Frame: 1, Event: lineage.Division},
		{Parent: lineage.None, Child: 3, Frame: 1, Event: lineage.Appearance},
	}
	var buf bytes.Buffer
	if err := pkgio.WriteLinksCSV(links, &buf); err != nil {
		t.Fatal(err)
	}
	want := "parent,child,frame,event\n0,1,1,division\n-1,3,1,appearance\n"
	if buf.String() != want {
		t.Errorf("CSV = %q, want %q", buf.String(), want)
	}
}

func TestExportTracks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res_track.txt")
	tracks := []lineage.Track{{ID: 1, Start: 0, End: 4}, {ID: 2, Start: 5, End: 9, Parent: 1}}
	if err := pkgio.ExportTracks(tracks, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "1 0 4 0\n2 5 9 1\n"; got != want {
		t.Errorf("tracks = %q, want %q", got, want)
	}
}
