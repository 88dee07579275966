package doc

import "fmt"

type pathEntry struct {
	node       *Node
	index      int
	childStart int // absolute position where child `index` starts
}

// ResolvedPos describes a position together with the chain of ancestors that
// contain it.
type ResolvedPos struct {
	Pos          int
	ParentOffset int
	path         []pathEntry
}

// Resolve locates pos inside the tree rooted at n.
func (n *Node) Resolve(pos int) (*ResolvedPos, error) {
	if pos < 0 || pos > n.ContentSize() {
		return nil, fmt.Errorf("%w: %d outside [0,%d]", ErrInvalidPosition, pos, n.ContentSize())
	}
	var path []pathEntry
	start := 0
	parentOffset := pos
	node := n
	for {
		index, offset := node.findIndex(parentOffset)
		rem := parentOffset - offset
		path = append(path, pathEntry{node: node, index: index, childStart: start + offset})
		if rem == 0 {
			break
		}
		node = node.Child(index)
		if node == nil || node.IsText() {
			break
		}
		parentOffset = rem - 1
		start += offset + 1
	}
	rp := &ResolvedPos{Pos: pos, path: path}
	rp.ParentOffset = pos - rp.Start(rp.Depth())
	return rp, nil
}

// Depth is the number of ancestors below the root that contain the position.
func (r *ResolvedPos) Depth() int { return len(r.path) - 1 }

// Node returns the ancestor at depth d (0 is the root).
func (r *ResolvedPos) Node(d int) *Node { return r.path[d].node }

func (r *ResolvedPos) Parent() *Node { return r.path[len(r.path)-1].node }

// Index returns the child index of the position inside the ancestor at depth d.
func (r *ResolvedPos) Index(d int) int { return r.path[d].index }

// Start returns the position at which the content of the ancestor at depth d starts.
func (r *ResolvedPos) Start(d int) int {
	if d == 0 {
		return 0
	}
	return r.path[d-1].childStart + 1
}

// End returns the position at which the content of the ancestor at depth d ends.
func (r *ResolvedPos) End(d int) int { return r.Start(d) + r.Node(d).ContentSize() }

// Before returns the position directly before the ancestor at depth d (d >= 1).
func (r *ResolvedPos) Before(d int) int { return r.path[d-1].childStart }

// After returns the position directly after the ancestor at depth d (d >= 1).
func (r *ResolvedPos) After(d int) int { return r.Before(d) + r.Node(d).NodeSize() }

// TextOffset is the rune offset into the text node the position points into,
// or 0 when the position sits between nodes.
func (r *ResolvedPos) TextOffset() int {
	last := r.path[len(r.path)-1]
	return r.Pos - last.childStart
}

// NodeAfter returns the child directly after the position, if any.
func (r *ResolvedPos) NodeAfter() *Node {
	if r.TextOffset() != 0 {
		return nil
	}
	return r.Parent().Child(r.Index(r.Depth()))
}

// NodeBefore returns the child directly before the position, if any.
func (r *ResolvedPos) NodeBefore() *Node {
	if r.TextOffset() != 0 {
		return nil
	}
	return r.Parent().Child(r.Index(r.Depth()) - 1)
}
