package hierarchy

// NoParent is the Parent value of a root node.
const NoParent = -1

// Features are the per-node metrics cached by [Sequence.Label].
type Features struct {
	Size       int     // Pixel area
	Shape      float64 // Extent: area divided by bounding-box area, in (0, 1]
	Confidence float64 // Extraction score clamped to [0, 1]
}

// Node is one segmentation candidate of one frame.
//
// Region, Score and Children are supplied by the extraction step. ID, Frame,
// Parent and Features are assigned by [Sequence.Label] and are meaningless
// before that.
type Node struct {
	Region   *Region
	Score    float64 // Extraction confidence, typically mean cell probability
	Children []*Node // Finer alternatives; each covers a subset of Region

	ID       int
	Frame    int
	Parent   int // Global ID of the enclosing candidate, or NoParent
	Features Features
}

// NewNode creates a candidate with the given region, score and children.
func NewNode(region *Region, score float64, children ...*Node) *Node {
	return &Node{Region: region, Score: score, Children: children, Parent: NoParent}
}

// IsRoot reports whether the node has no enclosing candidate.
func (n *Node) IsRoot() bool { return n.Parent == NoParent }

// IsLeaf reports whether the node has no finer alternatives.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// ChildIDs returns the global IDs of the node's children in order.
// Only valid after labeling.
func (n *Node) ChildIDs() []int {
	ids := make([]int, len(n.Children))
	for i, c := range n.Children {
		ids[i] = c.ID
	}
	return ids
}

// Hierarchy is the candidate forest of a single frame.
type Hierarchy struct {
	Roots []*Node
}

// NewHierarchy creates a frame forest from its roots.
func NewHierarchy(roots ...*Node) *Hierarchy {
	return &Hierarchy{Roots: roots}
}

// Walk visits every node reachable from the roots in pre-order, passing the
// node's parent (nil for roots). It does not guard against shared or cyclic
// nodes; use it only on forests that passed labeling.
func (h *Hierarchy) Walk(fn func(n, parent *Node)) {
	var visit func(n, parent *Node)
	visit = func(n, parent *Node) {
		fn(n, parent)
		for _, c := range n.Children {
			visit(c, n)
		}
	}
	for _, r := range h.Roots {
		visit(r, nil)
	}
}

func computeFeatures(n *Node) Features {
	f := Features{Confidence: min(max(n.Score, 0), 1)}
	if n.Region == nil {
		return f
	}
	f.Size = n.Region.Area()
	if b := n.Region.Bounds(); !b.Empty() {
		f.Shape = float64(f.Size) / float64(b.Dx()*b.Dy())
	}
	return f
}
