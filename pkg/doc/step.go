package doc

import "fmt"

// Step is one atomic change to a document.
type Step interface {
	Apply(d *Node) (*Node, error)
	Map() StepMap
}

// StepMap records which range a step replaced, for position mapping.
type StepMap struct {
	Pos     int
	OldSize int
	NewSize int
}

// Map moves pos through the change. assoc < 0 keeps positions at an insertion
// point before the inserted content; otherwise they move after it.
func (m StepMap) Map(pos, assoc int) int {
	if pos < m.Pos || (m.OldSize == 0 && m.NewSize == 0) {
		return pos
	}
	end := m.Pos + m.OldSize
	if pos > end {
		return pos + m.NewSize - m.OldSize
	}
	if pos == m.Pos && m.OldSize == 0 {
		if assoc < 0 {
			return pos
		}
		return pos + m.NewSize
	}
	if assoc < 0 {
		return m.Pos
	}
	return m.Pos + m.NewSize
}

// Mapping is an ordered list of step maps.
type Mapping []StepMap

func (m Mapping) Map(pos, assoc int) int {
	for _, sm := range m {
		pos = sm.Map(pos, assoc)
	}
	return pos
}

// InsertStep inserts nodes at a position. Inline nodes may be inserted in the
// middle of a text run, which is split around them.
type InsertStep struct {
	Pos   int
	Nodes []*Node
}

func (s InsertStep) Apply(d *Node) (*Node, error) {
	nodes := compact(s.Nodes)
	if len(nodes) == 0 {
		return nil, ErrEmptyInsert
	}
	rp, err := d.Resolve(s.Pos)
	if err != nil {
		return nil, err
	}
	depth := rp.Depth()
	parent := rp.Parent()
	if parent.IsLeaf() {
		return nil, fmt.Errorf("%w: %s is a leaf", ErrContentNotAllowed, parent.Type())
	}
	for _, n := range nodes {
		if !ContentAllows(parent.Kind(), n.Kind()) {
			return nil, fmt.Errorf("%w: %s inside %s", ErrContentNotAllowed, n.Type(), parent.Type())
		}
	}

	idx := rp.Index(depth)
	children := parent.content
	var next []*Node
	if off := rp.TextOffset(); off > 0 {
		textNode := children[idx]
		left, right := splitText(textNode, off)
		next = make([]*Node, 0, len(children)+len(nodes)+1)
		next = append(next, children[:idx]...)
		next = append(next, left)
		next = append(next, nodes...)
		next = append(next, right)
		next = append(next, children[idx+1:]...)
	} else {
		next = make([]*Node, 0, len(children)+len(nodes))
		next = append(next, children[:idx]...)
		next = append(next, nodes...)
		next = append(next, children[idx:]...)
	}
	return rebuild(rp, depth, parent.WithContent(next)), nil
}

func (s InsertStep) Map() StepMap {
	size := 0
	for _, n := range s.Nodes {
		if n != nil {
			size += n.NodeSize()
		}
	}
	return StepMap{Pos: s.Pos, NewSize: size}
}

// DeleteStep removes the content between From and To. Both ends must sit in
// the same parent; text runs may be cut, other nodes are removed whole.
type DeleteStep struct {
	From int
	To   int
}

func (s DeleteStep) Apply(d *Node) (*Node, error) {
	if s.From > s.To {
		return nil, fmt.Errorf("%w: from %d > to %d", ErrInvalidRange, s.From, s.To)
	}
	rf, err := d.Resolve(s.From)
	if err != nil {
		return nil, err
	}
	rt, err := d.Resolve(s.To)
	if err != nil {
		return nil, err
	}
	depth := rf.Depth()
	if rt.Depth() != depth || rf.Start(depth) != rt.Start(depth) {
		return nil, fmt.Errorf("%w: %d and %d are in different parents", ErrInvalidRange, s.From, s.To)
	}
	if s.From == s.To {
		return d, nil
	}
	parent := rf.Parent()
	base := rf.Start(depth)
	next := make([]*Node, 0, parent.ChildCount())
	pos := base
	for _, c := range parent.content {
		start, end := pos, pos+c.size
		pos = end
		if end <= s.From || start >= s.To {
			next = append(next, c)
			continue
		}
		if !c.IsText() {
			continue
		}
		runes := []rune(c.text)
		if start < s.From {
			next = append(next, NewText(string(runes[:s.From-start]), c.marks...))
		}
		if end > s.To {
			next = append(next, NewText(string(runes[s.To-start:]), c.marks...))
		}
	}
	return rebuild(rf, depth, parent.WithContent(next)), nil
}

func (s DeleteStep) Map() StepMap { return StepMap{Pos: s.From, OldSize: s.To - s.From} }

// SetAttrsStep merges Attrs into the attributes of the node starting at Pos.
type SetAttrsStep struct {
	Pos   int
	Attrs Attrs
}

func (s SetAttrsStep) Apply(d *Node) (*Node, error) {
	rp, err := d.Resolve(s.Pos)
	if err != nil {
		return nil, err
	}
	depth := rp.Depth()
	parent := rp.Parent()
	idx := rp.Index(depth)
	target := parent.Child(idx)
	if target == nil || rp.TextOffset() != 0 || target.IsText() {
		return nil, fmt.Errorf("%w: %d", ErrNoNodeAtPosition, s.Pos)
	}
	children := append([]*Node(nil), parent.content...)
	children[idx] = target.WithAttrs(s.Attrs)
	return rebuild(rp, depth, parent.WithContent(children)), nil
}

func (s SetAttrsStep) Map() StepMap { return StepMap{Pos: s.Pos} }

// rebuild swaps the ancestor at depth for replacement and rebuilds the spine
// up to the root.
func rebuild(rp *ResolvedPos, depth int, replacement *Node) *Node {
	node := replacement
	for d := depth; d > 0; d-- {
		parent := rp.Node(d - 1)
		idx := rp.Index(d - 1)
		children := append([]*Node(nil), parent.content...)
		children[idx] = node
		node = parent.WithContent(children)
	}
	return node
}

func splitText(n *Node, offset int) (*Node, *Node) {
	runes := []rune(n.text)
	return NewText(string(runes[:offset]), n.marks...), NewText(string(runes[offset:]), n.marks...)
}

func compact(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
