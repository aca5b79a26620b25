package affinity

import (
	"context"
	"errors"
	"image"
	"math"
	"slices"
	"strings"
	"testing"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

const width = 64

func node(x0, y0, x1, y1 int, score float64, children ...*hierarchy.Node) *hierarchy.Node {
	return hierarchy.NewNode(hierarchy.RectRegion(width, image.Rect(x0, y0, x1, y1)), score, children...)
}

// threeFrames builds:
//
//	frame 0: 0 = [0,4)x[0,4)  1 = [20,24)x[0,4)
//	frame 1: 2 = [0,4)x[0,2)  3 = [0,4)x[2,4)
//	frame 2: 4 = [1,5)x[0,4)
func threeFrames(t *testing.T) *hierarchy.Sequence {
	t.Helper()
	seq := hierarchy.NewSequence(
		hierarchy.NewHierarchy(node(0, 0, 4, 4, 1), node(20, 0, 24, 4, 1)),
		hierarchy.NewHierarchy(node(0, 0, 4, 2, 1), node(0, 2, 4, 4, 1)),
		hierarchy.NewHierarchy(node(1, 0, 5, 4, 1)),
	)
	if _, err := seq.Label(); err != nil {
		t.Fatal(err)
	}
	return seq
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in   string
		want Variant
	}{
		{"overlap", Overlap},
		{"IoU", IoU},
		{"iou_weight", IoU},
		{" distance ", Distance},
		{"distance_weight", Distance},
	}
	for _, tt := range tests {
		got, err := ParseVariant(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseVariant(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	_, err := ParseVariant("euclid")
	if !bterrors.Is(err, bterrors.ErrCodeInvalidConfig) {
		t.Fatalf("ParseVariant(euclid) error = %v, want INVALID_CONFIG", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "euclid") || !strings.Contains(msg, "overlap, iou, distance") {
		t.Errorf("error %q should name the value and the allowed set", msg)
	}
}

func TestNewMatrix(t *testing.T) {
	m, err := NewMatrix(4, []Edge{
		{Source: 1, Target: 3, Weight: 0.5},
		{Source: 0, Target: 3, Weight: 0.25},
		{Source: 0, Target: 2, Weight: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := m.Edges(); got[0].Target != 2 || got[1].Target != 3 || got[2].Source != 1 {
		t.Errorf("Edges() not sorted: %v", got)
	}
	if got := m.Out(0); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("Out(0) = %v, want [0 1]", got)
	}
	if got := m.In(3); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("In(3) = %v, want [1 2]", got)
	}
	if got := m.In(1); len(got) != 0 {
		t.Errorf("In(1) = %v, want empty", got)
	}
	if got := m.Index(1, 3); got != 2 {
		t.Errorf("Index(1, 3) = %d, want 2", got)
	}
	if got := m.Index(1, 2); got != -1 {
		t.Errorf("Index(1, 2) = %d, want -1", got)
	}
	if got := m.Weight(0, 3); got != 0.25 {
		t.Errorf("Weight(0, 3) = %v, want 0.25", got)
	}
	if got := m.Dense()[1][3]; got != 0.5 {
		t.Errorf("Dense()[1][3] = %v, want 0.5", got)
	}
}

func TestNewMatrixRejects(t *testing.T) {
	tests := []struct {
		name  string
		edges []Edge
	}{
		{"out of range", []Edge{{Source: 0, Target: 9}}},
		{"negative", []Edge{{Source: -1, Target: 1}}},
		{"self loop", []Edge{{Source: 1, Target: 1}}},
		{"duplicate", []Edge{{Source: 0, Target: 1}, {Source: 0, Target: 1, Weight: 2}}},
		{"NaN", []Edge{{Source: 0, Target: 1, Weight: math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMatrix(3, tt.edges); !bterrors.Is(err, bterrors.ErrCodeInvalidInput) {
				t.Errorf("NewMatrix() error = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestBuildVariants(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   []Edge
	}{
		{
			name:   "overlap",
			params: Params{Variant: Overlap},
			want: []Edge{
				{0, 2, 1}, {0, 3, 1},
				{2, 4, 6.0 / 8}, {3, 4, 6.0 / 8},
			},
		},
		{
			name:   "iou",
			params: Params{Variant: IoU},
			want: []Edge{
				{0, 2, 0.5}, {0, 3, 0.5},
				{2, 4, 6.0 / 18}, {3, 4, 6.0 / 18},
			},
		},
		{
			name:   "iou scaled with cutoff",
			params: Params{Variant: IoU, Scale: 10, MinWeight: 4},
			want:   []Edge{{0, 2, 5}, {0, 3, 5}},
		},
		{
			name:   "distance",
			params: Params{Variant: Distance, Threshold: 4},
			want: []Edge{
				{0, 2, 0.75}, {0, 3, 0.75},
				{2, 4, 1 - math.Hypot(1, 1)/4}, {3, 4, 1 - math.Hypot(1, 1)/4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := threeFrames(t)
			m, err := Build(context.Background(), seq, tt.params)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if m.N() != seq.Len() {
				t.Errorf("N() = %d, want %d", m.N(), seq.Len())
			}
			got := m.Edges()
			if len(got) != len(tt.want) {
				t.Fatalf("Edges() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Source != tt.want[i].Source || got[i].Target != tt.want[i].Target ||
					math.Abs(got[i].Weight-tt.want[i].Weight) > 1e-12 {
					t.Errorf("edge %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if err := m.CheckSequence(seq); err != nil {
				t.Errorf("CheckSequence() = %v", err)
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	seq := threeFrames(t)
	a, err := Build(context.Background(), seq, Params{Variant: IoU, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(context.Background(), seq, Params{Variant: IoU, Workers: 8})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Edges(), b.Edges()) {
		t.Errorf("Build() differs across worker counts:\n%v\n%v", a.Edges(), b.Edges())
	}
}

func TestBuildRequiresLabeledSequence(t *testing.T) {
	seq := hierarchy.NewSequence(hierarchy.NewHierarchy(node(0, 0, 1, 1, 1)))
	if _, err := Build(context.Background(), seq, Params{}); !errors.Is(err, hierarchy.ErrNotLabeled) {
		t.Errorf("Build() error = %v, want ErrNotLabeled", err)
	}
}

func TestBuildCanceled(t *testing.T) {
	seq := threeFrames(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, seq, Params{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want context.Canceled", err)
	}
}

func TestBuildSingleFrame(t *testing.T) {
	seq := hierarchy.NewSequence(hierarchy.NewHierarchy(node(0, 0, 4, 4, 1), node(8, 8, 9, 9, 1)))
	if _, err := seq.Label(); err != nil {
		t.Fatal(err)
	}
	m, err := Build(context.Background(), seq, Params{Variant: Distance})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 || m.N() != 2 {
		t.Errorf("single frame matrix = %d edges over %d nodes, want 0 over 2", m.Len(), m.N())
	}
}

func TestCheckSequenceRejectsSkipFrameEdges(t *testing.T) {
	seq := threeFrames(t)
	m, err := NewMatrix(seq.Len(), []Edge{{Source: 0, Target: 4, Weight: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CheckSequence(seq); !bterrors.Is(err, bterrors.ErrCodeInvalidInput) {
		t.Errorf("CheckSequence() = %v, want INVALID_INPUT", err)
	}
	small, _ := NewMatrix(2, nil)
	if err := small.CheckSequence(seq); err == nil {
		t.Error("CheckSequence() accepted a size mismatch")
	}
}

func TestPenalty(t *testing.T) {
	seq := hierarchy.NewSequence(hierarchy.NewHierarchy(
		node(0, 0, 4, 4, 1),     // 16 px, confident
		node(10, 10, 12, 12, 1), // 4 px
		node(20, 0, 24, 4, 0.2), // 16 px, unsure
	))
	if _, err := seq.Label(); err != nil {
		t.Fatal(err)
	}

	got, err := Penalty(seq, PenaltyParams{MinSize: 15, SizeCost: 2, ConfidenceCost: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 2, 0.8}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Penalty()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	zero, err := Penalty(seq, PenaltyParams{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(zero, []float64{0, 0, 0}) {
		t.Errorf("zero params Penalty() = %v, want zeros", zero)
	}

	if _, err := Penalty(seq, PenaltyParams{SizeCost: -1}); !bterrors.Is(err, bterrors.ErrCodeInvalidConfig) {
		t.Errorf("negative cost error = %v, want INVALID_CONFIG", err)
	}
}
