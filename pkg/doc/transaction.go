package doc

// Transaction accumulates steps against a starting document. A step that
// fails leaves the transaction exactly as it was.
type Transaction struct {
	before       *Node
	doc          *Node
	steps        []Step
	mapping      Mapping
	selection    int
	selectionSet bool
	meta         map[string]any
}

// NewTransaction starts a transaction on d with the cursor at selection.
func NewTransaction(d *Node, selection int) *Transaction {
	return &Transaction{
		before:    d,
		doc:       d,
		selection: clamp(selection, 0, d.ContentSize()),
		meta:      map[string]any{},
	}
}

// Before returns the document the transaction started from.
func (tr *Transaction) Before() *Node { return tr.before }

// Doc returns the document with all steps applied.
func (tr *Transaction) Doc() *Node { return tr.doc }

func (tr *Transaction) Steps() []Step { return append([]Step(nil), tr.steps...) }

func (tr *Transaction) Mapping() Mapping { return append(Mapping(nil), tr.mapping...) }

func (tr *Transaction) DocChanged() bool { return len(tr.steps) > 0 }

// Step applies s and records it.
func (tr *Transaction) Step(s Step) error {
	next, err := s.Apply(tr.doc)
	if err != nil {
		return err
	}
	sm := s.Map()
	tr.doc = next
	tr.steps = append(tr.steps, s)
	tr.mapping = append(tr.mapping, sm)
	tr.selection = clamp(sm.Map(tr.selection, 1), 0, next.ContentSize())
	return nil
}

func (tr *Transaction) Insert(pos int, nodes ...*Node) error {
	return tr.Step(InsertStep{Pos: pos, Nodes: nodes})
}

// InsertText inserts a text run. Empty text is a no-op.
func (tr *Transaction) InsertText(pos int, text string, marks ...string) error {
	if text == "" {
		return nil
	}
	return tr.Step(InsertStep{Pos: pos, Nodes: []*Node{NewText(text, marks...)}})
}

func (tr *Transaction) Delete(from, to int) error {
	return tr.Step(DeleteStep{From: from, To: to})
}

// ReplaceWith deletes [from,to) and inserts nodes at from as one unit.
func (tr *Transaction) ReplaceWith(from, to int, nodes ...*Node) error {
	mark := tr.checkpoint()
	if err := tr.Delete(from, to); err != nil {
		return err
	}
	if err := tr.Insert(from, nodes...); err != nil {
		tr.restore(mark)
		return err
	}
	return nil
}

func (tr *Transaction) SetNodeAttrs(pos int, attrs Attrs) error {
	return tr.Step(SetAttrsStep{Pos: pos, Attrs: attrs})
}

func (tr *Transaction) Selection() int { return tr.selection }

func (tr *Transaction) SetSelection(pos int) *Transaction {
	tr.selection = clamp(pos, 0, tr.doc.ContentSize())
	tr.selectionSet = true
	return tr
}

func (tr *Transaction) SelectionSet() bool { return tr.selectionSet }

func (tr *Transaction) SetMeta(key string, value any) *Transaction {
	tr.meta[key] = value
	return tr
}

func (tr *Transaction) Meta(key string) any { return tr.meta[key] }

type checkpoint struct {
	doc       *Node
	steps     int
	selection int
}

func (tr *Transaction) checkpoint() checkpoint {
	return checkpoint{doc: tr.doc, steps: len(tr.steps), selection: tr.selection}
}

func (tr *Transaction) restore(c checkpoint) {
	tr.doc = c.doc
	tr.steps = tr.steps[:c.steps]
	tr.mapping = tr.mapping[:c.steps]
	tr.selection = c.selection
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
