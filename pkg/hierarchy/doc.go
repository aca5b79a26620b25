// Package hierarchy models nested segmentation candidates across the frames
// of a time-lapse sequence.
//
// # Overview
//
// For every frame, an upstream extraction step produces a forest of candidate
// regions: a root is a coarse segmentation, its children are finer
// alternatives covering strict subsets of its pixels, and so on. At most one
// candidate on any root-to-leaf chain can describe a real object, which is
// the exclusivity the tracking solver must respect.
//
// A [Hierarchy] holds the forest of one frame as a pointer tree of [Node]
// values. A [Sequence] holds one hierarchy per frame, in frame order.
//
// # Labeling
//
// [Sequence.Label] is the one-time enrichment pass. It validates every
// forest, assigns each node a global ID (frame order, then pre-order over
// each root), records the node's frame and parent, and caches its
// [Features]. After labeling the sequence behaves as a flat arena indexed by
// ID:
//
//	seq := hierarchy.NewSequence(frame0, frame1)
//	n, err := seq.Label()
//	for node := range seq.All() {
//	    fmt.Println(node.ID, node.Frame, node.Features.Size)
//	}
//
// Because IDs are assigned in pre-order, the descendants of a node occupy the
// contiguous ID range immediately after it. [Sequence.Ancestors] walks parent
// links in O(depth); [Sequence.Descendants] and [Sequence.IsAncestor] are
// O(1) range computations.
//
// # Concurrency
//
// Label must not run concurrently with anything else touching the sequence.
// Once labeled, a Sequence is read-only and safe for concurrent readers.
package hierarchy
