// Package doc implements the immutable document tree edited by threadwriter.
//
// Positions follow the usual structured-editor model: the document content
// starts at 0, entering or leaving a non-leaf node costs one position, a text
// node occupies one position per rune and every other leaf occupies one.
// Nodes are never mutated after construction; every edit goes through a
// Transaction which produces a new tree.
package doc

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// Kind is the closed set of node variants the thread subsystem understands.
// Anything else is KindOther and keeps its serialized type name.
type Kind int

const (
	KindOther Kind = iota
	KindDoc
	KindThread
	KindResponse
	KindUserMessage
	KindComposer
	KindParagraph
	KindHeading
	KindCodeBlock
	KindText
	KindHardBreak
	KindImage
)

// Serialized type names.
const (
	TypeDoc         = "doc"
	TypeThread      = "aiChatThread"
	TypeResponse    = "aiResponseMessage"
	TypeUserMessage = "aiUserMessage"
	TypeComposer    = "aiChatInput"
	TypeParagraph   = "paragraph"
	TypeHeading     = "heading"
	TypeCodeBlock   = "codeBlock"
	TypeText        = "text"
	TypeHardBreak   = "hardBreak"
	TypeImage       = "image"
)

var kindTypeNames = map[Kind]string{
	KindDoc:         TypeDoc,
	KindThread:      TypeThread,
	KindResponse:    TypeResponse,
	KindUserMessage: TypeUserMessage,
	KindComposer:    TypeComposer,
	KindParagraph:   TypeParagraph,
	KindHeading:     TypeHeading,
	KindCodeBlock:   TypeCodeBlock,
	KindText:        TypeText,
	KindHardBreak:   TypeHardBreak,
	KindImage:       TypeImage,
}

var typeNameKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindTypeNames))
	for k, name := range kindTypeNames {
		m[name] = k
	}
	return m
}()

// KindOf maps a serialized type name to its Kind.
func KindOf(typeName string) Kind {
	if k, ok := typeNameKinds[typeName]; ok {
		return k
	}
	return KindOther
}

func (k Kind) String() string {
	if name, ok := kindTypeNames[k]; ok {
		return name
	}
	return "other"
}

// Attrs holds node attributes. Values are JSON-compatible.
type Attrs map[string]any

func (a Attrs) clone() Attrs {
	if len(a) == 0 {
		return Attrs{}
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Attrs) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Attrs) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Int accepts the numeric shapes produced by Go literals and by encoding/json.
func (a Attrs) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}

// Node is one immutable element of the document tree.
type Node struct {
	kind     Kind
	typeName string
	attrs    Attrs
	content  []*Node
	text     string
	marks    []string
	size     int
}

// NewNode builds a container or leaf of a known kind. Nil children are
// skipped and adjacent text runs with identical marks are merged.
func NewNode(kind Kind, attrs Attrs, content ...*Node) *Node {
	if kind == KindText {
		panic("doc: use NewText for text nodes")
	}
	return build(kind, kindTypeNames[kind], attrs, content)
}

// NewOther builds a node of a type this package does not model, such as
// dropdown controls or node types left over from older documents.
func NewOther(typeName string, attrs Attrs, content ...*Node) *Node {
	if k := KindOf(typeName); k != KindOther {
		return build(k, typeName, attrs, content)
	}
	return build(KindOther, typeName, attrs, content)
}

// NewText returns a text node, or nil for an empty string.
func NewText(text string, marks ...string) *Node {
	if text == "" {
		return nil
	}
	n := &Node{
		kind:     KindText,
		typeName: TypeText,
		attrs:    Attrs{},
		text:     text,
		marks:    normalizeMarks(marks),
	}
	n.size = utf8.RuneCountInString(text)
	return n
}

func build(kind Kind, typeName string, attrs Attrs, content []*Node) *Node {
	n := &Node{
		kind:     kind,
		typeName: typeName,
		attrs:    attrs.clone(),
	}
	n.content = normalizeContent(kind, content)
	n.size = n.computeSize()
	return n
}

func (n *Node) computeSize() int {
	if n.kind == KindText {
		return utf8.RuneCountInString(n.text)
	}
	if n.IsLeaf() {
		return 1
	}
	size := 2
	for _, c := range n.content {
		size += c.size
	}
	return size
}

func normalizeMarks(marks []string) []string {
	if len(marks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(marks))
	out := make([]string, 0, len(marks))
	for _, m := range marks {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func normalizeContent(parent Kind, content []*Node) []*Node {
	out := make([]*Node, 0, len(content))
	for _, c := range content {
		if c == nil {
			continue
		}
		if c.kind == KindText && parent == KindCodeBlock && len(c.marks) > 0 {
			c = NewText(c.text)
		}
		if c.kind == KindText && len(out) > 0 {
			prev := out[len(out)-1]
			if prev.kind == KindText && sameMarks(prev.marks, c.marks) {
				out[len(out)-1] = NewText(prev.text+c.text, prev.marks...)
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func sameMarks(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (n *Node) Kind() Kind { return n.kind }

// Type returns the serialized type name.
func (n *Node) Type() string { return n.typeName }

// Attrs returns a copy of the node attributes.
func (n *Node) Attrs() Attrs { return n.attrs.clone() }

func (n *Node) Attr(key string) any { return n.attrs[key] }

func (n *Node) AttrString(key string) string { return n.attrs.String(key) }

func (n *Node) AttrBool(key string) bool { return n.attrs.Bool(key) }

func (n *Node) AttrInt(key string) int { return n.attrs.Int(key) }

// Text returns the text of a text node.
func (n *Node) Text() string { return n.text }

func (n *Node) Marks() []string {
	if len(n.marks) == 0 {
		return nil
	}
	return append([]string(nil), n.marks...)
}

func (n *Node) HasMark(mark string) bool {
	for _, m := range n.marks {
		if m == mark {
			return true
		}
	}
	return false
}

func (n *Node) ChildCount() int { return len(n.content) }

// Child returns the i-th child or nil when out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.content) {
		return nil
	}
	return n.content[i]
}

func (n *Node) Children() []*Node { return append([]*Node(nil), n.content...) }

func (n *Node) FirstChild() *Node { return n.Child(0) }

func (n *Node) LastChild() *Node { return n.Child(len(n.content) - 1) }

func (n *Node) IsText() bool { return n.kind == KindText }

// IsLeaf reports whether the node can never hold content.
func (n *Node) IsLeaf() bool {
	switch n.kind {
	case KindText, KindHardBreak, KindImage:
		return true
	case KindOther:
		return len(n.content) == 0
	default:
		return false
	}
}

func (n *Node) IsInline() bool { return n.kind == KindText || n.kind == KindHardBreak }

func (n *Node) IsTextblock() bool {
	switch n.kind {
	case KindParagraph, KindHeading, KindCodeBlock:
		return true
	default:
		return false
	}
}

// NodeSize is the number of positions the node occupies in its parent.
func (n *Node) NodeSize() int { return n.size }

// ContentSize is the number of positions between the node's boundaries.
func (n *Node) ContentSize() int {
	if n.IsLeaf() {
		return 0
	}
	return n.size - 2
}

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	if n.kind == KindText {
		return n.text
	}
	var sb strings.Builder
	n.Descendants(func(c *Node, _ int, _ *Node, _ int) bool {
		if c.kind == KindText {
			sb.WriteString(c.text)
		}
		return true
	})
	return sb.String()
}

// WithAttrs returns a copy with patch merged over the current attributes.
// A nil value removes the key.
func (n *Node) WithAttrs(patch Attrs) *Node {
	cp := *n
	cp.attrs = n.attrs.clone()
	for k, v := range patch {
		if v == nil {
			delete(cp.attrs, k)
			continue
		}
		cp.attrs[k] = v
	}
	return &cp
}

// WithContent returns a copy holding content instead of the current children.
func (n *Node) WithContent(content []*Node) *Node {
	return build(n.kind, n.typeName, n.attrs, content)
}

// Descendants calls fn for every descendant in document order. pos is the
// position of the descendant relative to the start of n's content. Returning
// false skips the descendant's own children.
func (n *Node) Descendants(fn func(node *Node, pos int, parent *Node, index int) bool) {
	n.descend(0, fn)
}

func (n *Node) descend(base int, fn func(*Node, int, *Node, int) bool) {
	pos := base
	for i, c := range n.content {
		if fn(c, pos, n, i) && len(c.content) > 0 {
			c.descend(pos+1, fn)
		}
		pos += c.size
	}
}

// findIndex returns the child index containing pos and the offset at which
// that child starts. A position on a boundary belongs to the following child.
func (n *Node) findIndex(pos int) (int, int) {
	if pos == 0 {
		return 0, 0
	}
	if pos == n.ContentSize() {
		return len(n.content), pos
	}
	cur := 0
	for i, c := range n.content {
		end := cur + c.size
		if end >= pos {
			if end == pos {
				return i + 1, end
			}
			return i, cur
		}
		cur = end
	}
	return len(n.content), cur
}

// NodeAt returns the node starting at pos (relative to n's content), or nil.
func (n *Node) NodeAt(pos int) *Node {
	if pos < 0 || pos > n.ContentSize() {
		return nil
	}
	node := n
	for {
		index, offset := node.findIndex(pos)
		child := node.Child(index)
		if child == nil {
			return nil
		}
		if offset == pos || child.IsText() {
			return child
		}
		pos -= offset + 1
		node = child
	}
}

// Equal reports structural equality.
func (n *Node) Equal(other *Node) bool {
	if n == other {
		return true
	}
	if n == nil || other == nil {
		return false
	}
	if n.kind != other.kind || n.typeName != other.typeName || n.text != other.text {
		return false
	}
	if !sameMarks(n.marks, other.marks) || len(n.content) != len(other.content) {
		return false
	}
	if !attrsEqual(n.attrs, other.attrs) {
		return false
	}
	for i := range n.content {
		if !n.content[i].Equal(other.content[i]) {
			return false
		}
	}
	return true
}

func attrsEqual(a, b Attrs) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if af, bf, ok := numericPair(av, bv); ok {
			if af != bf {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}

func numericPair(a, b any) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return af, bf, aok && bok
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// String renders a compact debug form, e.g. doc(paragraph("hi")).
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.kind == KindText {
		if len(n.marks) > 0 {
			return fmt.Sprintf("%s%q", strings.Join(n.marks, "+"), n.text)
		}
		return fmt.Sprintf("%q", n.text)
	}
	if len(n.content) == 0 {
		return n.typeName
	}
	parts := make([]string, len(n.content))
	for i, c := range n.content {
		parts[i] = c.String()
	}
	return n.typeName + "(" + strings.Join(parts, ", ") + ")"
}
