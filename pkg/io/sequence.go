package io

import (
	"encoding/json"
	"image"
	"io"
	"os"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	"github.com/matzehuels/bactrack/pkg/hierarchy"
)

type sequenceDoc struct {
	Width  int        `json:"width"`
	Frames []frameDoc `json:"frames"`
}

type frameDoc struct {
	Nodes []nodeDoc `json:"nodes"`
}

type nodeDoc struct {
	Pixels   []int     `json:"pixels"`
	Rect     *[4]int   `json:"rect,omitempty"`
	Score    float64   `json:"score"`
	Children []nodeDoc `json:"children,omitempty"`
}

// Limits bounds the image geometry a sequence document may describe. A rect
// candidate costs its area in memory regardless of the document's size.
type Limits struct {
	MaxWidth  int // Image width in pixels
	MaxHeight int // Largest y coordinate plus one
	MaxPixels int // Total pixels over every candidate of the sequence
}

// DefaultLimits admits 16384x16384 images and 2^24 candidate pixels.
func DefaultLimits() Limits {
	return Limits{MaxWidth: 1 << 14, MaxHeight: 1 << 14, MaxPixels: 1 << 24}
}

// ReadSequence decodes a JSON sequence from r within [DefaultLimits]. The
// returned sequence is not labeled. ReadSequence does not close r.
//
// Malformed JSON, candidates without a valid region and documents over the
// limits fail with INVALID_FORMAT; the error names the frame of the
// offending candidate.
func ReadSequence(r io.Reader) (*hierarchy.Sequence, error) {
	return ReadSequenceLimits(r, DefaultLimits())
}

// ReadSequenceLimits is [ReadSequence] with explicit limits.
func ReadSequenceLimits(r io.Reader, lim Limits) (*hierarchy.Sequence, error) {
	var doc sequenceDoc
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeInvalidFormat, err, "decode sequence")
	}
	if doc.Width <= 0 {
		return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "sequence width must be positive, got %d", doc.Width)
	}
	if doc.Width > lim.MaxWidth {
		return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "sequence width %d exceeds %d", doc.Width, lim.MaxWidth)
	}
	d := &decoder{width: doc.Width, lim: lim}

	frames := make([]*hierarchy.Hierarchy, len(doc.Frames))
	for f, fd := range doc.Frames {
		roots := make([]*hierarchy.Node, len(fd.Nodes))
		for i := range fd.Nodes {
			n, err := d.node(&fd.Nodes[i])
			if err != nil {
				return nil, bterrors.Wrap(bterrors.ErrCodeInvalidFormat, err, "frame %d", f)
			}
			roots[i] = n
		}
		frames[f] = hierarchy.NewHierarchy(roots...)
	}
	return hierarchy.NewSequence(frames...), nil
}

type decoder struct {
	width  int
	lim    Limits
	pixels int
}

// charge adds n pixels to the sequence total.
func (d *decoder) charge(n int) error {
	d.pixels += n
	if d.pixels > d.lim.MaxPixels {
		return bterrors.New(bterrors.ErrCodeInvalidFormat, "sequence exceeds %d candidate pixels", d.lim.MaxPixels)
	}
	return nil
}

func (d *decoder) node(nd *nodeDoc) (*hierarchy.Node, error) {
	var region *hierarchy.Region
	switch {
	case nd.Rect != nil && nd.Pixels != nil:
		return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "candidate has both pixels and rect")
	case nd.Rect != nil:
		r := nd.Rect
		if r[0] < 0 || r[1] < 0 || r[2] > d.width || r[0] >= r[2] || r[1] >= r[3] {
			return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "invalid rect %v for width %d", *r, d.width)
		}
		if r[3] > d.lim.MaxHeight {
			return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "rect %v exceeds image height %d", *r, d.lim.MaxHeight)
		}
		if err := d.charge((r[2] - r[0]) * (r[3] - r[1])); err != nil {
			return nil, err
		}
		region = hierarchy.RectRegion(d.width, image.Rect(r[0], r[1], r[2], r[3]))
	case nd.Pixels != nil:
		if err := d.charge(len(nd.Pixels)); err != nil {
			return nil, err
		}
		limit := d.width * d.lim.MaxHeight
		for _, p := range nd.Pixels {
			if p >= limit {
				return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "pixel %d exceeds image height %d", p, d.lim.MaxHeight)
			}
		}
		var err error
		if region, err = hierarchy.NewRegion(d.width, nd.Pixels); err != nil {
			return nil, err
		}
	default:
		return nil, bterrors.New(bterrors.ErrCodeInvalidFormat, "candidate needs pixels or rect")
	}

	children := make([]*hierarchy.Node, len(nd.Children))
	for i := range nd.Children {
		c, err := d.node(&nd.Children[i])
		if err != nil {
			return nil, err
		}
		children[i] = c
	}
	return hierarchy.NewNode(region, nd.Score, children...), nil
}

// ImportSequence reads the JSON sequence file at path.
func ImportSequence(path string) (*hierarchy.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bterrors.Wrap(bterrors.ErrCodeNotFound, err, "open %s", path)
	}
	defer f.Close()
	return ReadSequence(f)
}

// WriteSequence encodes seq as indented JSON. All regions must share one
// width; an empty sequence is written with width 1.
func WriteSequence(seq *hierarchy.Sequence, w io.Writer) error {
	doc := sequenceDoc{Frames: make([]frameDoc, seq.FrameCount())}
	for f, h := range seq.Frames() {
		if h == nil {
			return bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, hierarchy.ErrNilHierarchy, "frame %d", f)
		}
		doc.Frames[f].Nodes = make([]nodeDoc, 0, len(h.Roots))
		for _, r := range h.Roots {
			nd, err := encodeNode(r, &doc.Width)
			if err != nil {
				return bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, err, "frame %d", f)
			}
			doc.Frames[f].Nodes = append(doc.Frames[f].Nodes, nd)
		}
	}
	if doc.Width == 0 {
		doc.Width = 1
	}
	return encodeJSON(w, doc)
}

func encodeNode(n *hierarchy.Node, width *int) (nodeDoc, error) {
	if n == nil {
		return nodeDoc{}, hierarchy.ErrNilNode
	}
	if n.Region == nil {
		return nodeDoc{}, hierarchy.ErrNilRegion
	}
	switch {
	case *width == 0:
		*width = n.Region.Width()
	case *width != n.Region.Width():
		return nodeDoc{}, bterrors.New(bterrors.ErrCodeInvalidInput,
			"mixed region widths %d and %d", *width, n.Region.Width())
	}
	nd := nodeDoc{Pixels: n.Region.Pixels(), Score: n.Score}
	if nd.Pixels == nil {
		nd.Pixels = []int{}
	}
	for _, c := range n.Children {
		cd, err := encodeNode(c, width)
		if err != nil {
			return nodeDoc{}, err
		}
		nd.Children = append(nd.Children, cd)
	}
	return nd, nil
}

// ExportSequence writes seq to a JSON file at path.
func ExportSequence(seq *hierarchy.Sequence, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteSequence(seq, w) })
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return bterrors.Wrap(bterrors.ErrCodeInternal, err, "encode")
	}
	return nil
}
