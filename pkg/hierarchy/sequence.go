package hierarchy

import (
	"errors"
	"iter"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
)

var (
	// ErrNilNode is returned by [Sequence.Label] when a forest contains a nil
	// root or child pointer.
	ErrNilNode = errors.New("nil candidate node")

	// ErrNilRegion is returned by [Sequence.Label] when a candidate has no region.
	ErrNilRegion = errors.New("candidate node has no region")

	// ErrSharedNode is returned by [Sequence.Label] when the same node is
	// reachable twice, either from two parents, two frames, or through a cycle.
	ErrSharedNode = errors.New("candidate node reachable more than once")

	// ErrNilHierarchy is returned by [Sequence.Label] for a nil frame.
	ErrNilHierarchy = errors.New("nil frame hierarchy")

	// ErrNotLabeled is returned by consumers that require a labeled sequence.
	ErrNotLabeled = errors.New("sequence is not labeled")
)

// Sequence is the ordered list of frame hierarchies of one time-lapse.
//
// The zero value is an empty, unlabeled sequence. Use [NewSequence] to build
// one and [Sequence.Label] before any ID-based query.
type Sequence struct {
	frames  []*Hierarchy
	nodes   []*Node
	span    []int // span[id] is the size of the subtree rooted at id
	offsets []int // frame f owns IDs [offsets[f], offsets[f+1])
	labeled bool
}

// NewSequence creates a sequence from per-frame hierarchies in frame order.
func NewSequence(frames ...*Hierarchy) *Sequence {
	return &Sequence{frames: frames}
}

// Frames returns the per-frame hierarchies. The slice must not be modified.
func (s *Sequence) Frames() []*Hierarchy { return s.frames }

// FrameCount returns the number of frames, including empty ones.
func (s *Sequence) FrameCount() int { return len(s.frames) }

// Labeled reports whether Label has completed.
func (s *Sequence) Labeled() bool { return s.labeled }

// Label validates every frame forest, assigns global IDs frame by frame in
// pre-order and computes per-node features. It returns the total node count N;
// IDs are exactly 0..N-1.
//
// Label is idempotent: once it succeeded, further calls return N without
// touching the nodes. On error nothing is modified.
func (s *Sequence) Label() (int, error) {
	if s.labeled {
		return len(s.nodes), nil
	}

	type entry struct {
		node   *Node
		parent int
		frame  int
	}
	var order []entry
	offsets := make([]int, 0, len(s.frames)+1)
	seen := make(map[*Node]bool)

	for f, h := range s.frames {
		offsets = append(offsets, len(order))
		if h == nil {
			return 0, bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, ErrNilHierarchy, "frame %d", f)
		}

		// Explicit stack keeps pre-order without recursion depth limits.
		type item struct {
			node   *Node
			parent int
		}
		stack := make([]item, 0, len(h.Roots))
		for i := len(h.Roots) - 1; i >= 0; i-- {
			stack = append(stack, item{h.Roots[i], NoParent})
		}
		for len(stack) > 0 {
			it := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			switch {
			case it.node == nil:
				return 0, bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, ErrNilNode, "frame %d", f)
			case it.node.Region == nil:
				return 0, bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, ErrNilRegion, "frame %d", f)
			case seen[it.node]:
				return 0, bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, ErrSharedNode, "frame %d", f)
			}
			seen[it.node] = true

			id := len(order)
			order = append(order, entry{node: it.node, parent: it.parent, frame: f})
			for i := len(it.node.Children) - 1; i >= 0; i-- {
				stack = append(stack, item{it.node.Children[i], id})
			}
		}
	}
	offsets = append(offsets, len(order))

	nodes := make([]*Node, len(order))
	span := make([]int, len(order))
	for id, e := range order {
		e.node.ID = id
		e.node.Frame = e.frame
		e.node.Parent = e.parent
		e.node.Features = computeFeatures(e.node)
		nodes[id] = e.node
		span[id] = 1
	}
	// Children carry larger IDs than their parents, so a reverse sweep
	// accumulates complete subtree sizes.
	for id := len(nodes) - 1; id >= 0; id-- {
		if p := nodes[id].Parent; p != NoParent {
			span[p] += span[id]
		}
	}

	s.nodes, s.span, s.offsets = nodes, span, offsets
	s.labeled = true
	return len(nodes), nil
}

// RequireLabeled returns an INVALID_HIERARCHY error wrapping [ErrNotLabeled]
// if Label has not completed.
func (s *Sequence) RequireLabeled() error {
	if s == nil || !s.labeled {
		return bterrors.Wrap(bterrors.ErrCodeInvalidHierarchy, ErrNotLabeled, "label the sequence first")
	}
	return nil
}

// Len returns the total number of labeled nodes N (0 before labeling).
func (s *Sequence) Len() int { return len(s.nodes) }

// Node returns the node with the given global ID, or nil if out of range.
func (s *Sequence) Node(id int) *Node {
	if id < 0 || id >= len(s.nodes) {
		return nil
	}
	return s.nodes[id]
}

// Frame returns the frame index of the node with the given ID.
// It panics if id is out of range.
func (s *Sequence) Frame(id int) int { return s.nodes[id].Frame }

// FrameRange returns the half-open ID range [start, end) owned by frame f.
// Out-of-range frames yield an empty range.
func (s *Sequence) FrameRange(f int) (start, end int) {
	if f < 0 || f+1 >= len(s.offsets) {
		return 0, 0
	}
	return s.offsets[f], s.offsets[f+1]
}

// FrameNodes returns the nodes of frame f in ID order. The slice must not be modified.
func (s *Sequence) FrameNodes(f int) []*Node {
	start, end := s.FrameRange(f)
	return s.nodes[start:end]
}

// All iterates every labeled node across every frame in ID order.
func (s *Sequence) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, n := range s.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// Ancestors returns the IDs of the frame-local ancestors of id, nearest first,
// ending at the root. Roots and out-of-range IDs have no ancestors.
func (s *Sequence) Ancestors(id int) []int {
	n := s.Node(id)
	if n == nil {
		return nil
	}
	var out []int
	for p := n.Parent; p != NoParent; p = s.nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Descendants returns the IDs of every node below id in its frame forest,
// in pre-order.
func (s *Sequence) Descendants(id int) []int {
	if id < 0 || id >= len(s.nodes) || s.span[id] == 1 {
		return nil
	}
	out := make([]int, 0, s.span[id]-1)
	for d := id + 1; d < id+s.span[id]; d++ {
		out = append(out, d)
	}
	return out
}

// IsAncestor reports whether a is a strict ancestor of d.
func (s *Sequence) IsAncestor(a, d int) bool {
	if a < 0 || a >= len(s.nodes) {
		return false
	}
	return d > a && d < a+s.span[a]
}

// Conflicts reports whether two candidates cannot be selected together,
// i.e. one encloses the other.
func (s *Sequence) Conflicts(a, b int) bool {
	return s.IsAncestor(a, b) || s.IsAncestor(b, a)
}

// Depth returns the length of the longest root-to-leaf chain in any frame.
func (s *Sequence) Depth() int {
	depth := make([]int, len(s.nodes))
	best := 0
	for id, n := range s.nodes {
		if n.Parent != NoParent {
			depth[id] = depth[n.Parent] + 1
		} else {
			depth[id] = 1
		}
		best = max(best, depth[id])
	}
	return best
}
