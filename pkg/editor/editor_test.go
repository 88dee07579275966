package editor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choraleia/threadwriter/pkg/doc"
)

// counter counts document-changing transactions in a state field.
type counter struct{}

func (counter) Key() string { return "counter" }
func (counter) InitField(*State) any { return 0 }
func (counter) ApplyField(tr *doc.Transaction, v any, _, _ *State) any {
	if tr.DocChanged() {
		return v.(int) + 1
	}
	return v
}

// noEmptyDoc refuses transactions that empty the document.
type noEmptyDoc struct{}

func (noEmptyDoc) Key() string { return "noEmptyDoc" }
func (noEmptyDoc) FilterTransaction(tr *doc.Transaction, _ *State) bool {
	return tr.Doc().ChildCount() > 0
}

// trailingParagraph keeps an empty paragraph at the end of the document.
type trailingParagraph struct{ calls int }

func (p *trailingParagraph) Key() string { return "trailing" }
func (p *trailingParagraph) AppendTransaction(_ []*doc.Transaction, _, next *State) *doc.Transaction {
	p.calls++
	last := next.Doc().LastChild()
	if last != nil && last.Kind() == doc.KindParagraph && last.ChildCount() == 0 {
		return nil
	}
	tr := next.Tr()
	if err := tr.Insert(next.Doc().ContentSize(), doc.Paragraph()); err != nil {
		return nil
	}
	return tr
}

type attacher struct {
	key      string
	err      error
	detached *[]string
}

func (a attacher) Key() string { return a.key }
func (a attacher) AttachView(*Editor) (func(), error) {
	if a.err != nil {
		return nil, a.err
	}
	return func() { *a.detached = append(*a.detached, a.key) }, nil
}

func TestApplyTransactionPipeline(t *testing.T) {
	trailing := &trailingParagraph{}
	s := NewState(doc.Doc(doc.Paragraph()), counter{}, noEmptyDoc{}, trailing)
	n, ok := FieldOf[int](s, counter{})
	require.True(t, ok)
	assert.Equal(t, 0, n)

	tr := s.Tr()
	require.NoError(t, tr.InsertText(1, "hello"))
	next, trs, err := s.ApplyTransaction(tr)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Same(t, tr, trs[1].Meta(MetaAppendedTransaction))
	assert.Equal(t, 2, next.Doc().ChildCount())
	n, _ = FieldOf[int](next, counter{})
	assert.Equal(t, 2, n)
}

func TestApplyTransactionRejected(t *testing.T) {
	s := NewState(doc.Doc(doc.Paragraph()), noEmptyDoc{})
	tr := s.Tr()
	require.NoError(t, tr.Delete(0, 2))
	next, trs, err := s.ApplyTransaction(tr)
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.Nil(t, trs)
	assert.Same(t, s, next)
}

func TestApplyTransactionStale(t *testing.T) {
	s := NewState(doc.Doc(doc.Paragraph()))
	other := NewState(doc.Doc(doc.Paragraph()))
	_, _, err := s.ApplyTransaction(other.Tr())
	assert.ErrorIs(t, err, ErrStaleTransaction)
}

func TestEditorDispatchAndListeners(t *testing.T) {
	e, err := New("d1", NewState(doc.Doc(doc.Paragraph()), noEmptyDoc{}))
	require.NoError(t, err)

	var changes []Change
	off := e.OnChange(func(c Change) { changes = append(changes, c) })

	tr := e.State().Tr()
	require.NoError(t, tr.InsertText(1, "a"))
	require.NoError(t, e.Dispatch(tr))
	require.Len(t, changes, 1)
	assert.True(t, changes[0].DocChanged())
	assert.Equal(t, "a", e.State().Doc().TextContent())

	// tr is now stale.
	assert.ErrorIs(t, e.Dispatch(tr), ErrStaleTransaction)

	err = e.Update(func(s *State) (*doc.Transaction, error) {
		tr := s.Tr()
		return tr, tr.Delete(0, s.Doc().ContentSize())
	})
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.Equal(t, "a", e.State().Doc().TextContent())

	assert.NoError(t, e.Update(func(*State) (*doc.Transaction, error) { return nil, nil }))

	off()
	require.NoError(t, e.Update(func(s *State) (*doc.Transaction, error) {
		tr := s.Tr()
		return tr, tr.InsertText(1, "b")
	}))
	assert.Len(t, changes, 1)
}

func TestEditorAttachDetach(t *testing.T) {
	var detached []string
	boom := errors.New("boom")

	_, err := New("d1", NewState(doc.Doc(),
		attacher{key: "a", detached: &detached},
		attacher{key: "b", detached: &detached},
		attacher{key: "c", err: boom, detached: &detached},
	))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"b", "a"}, detached)

	detached = nil
	e, err := New("d2", NewState(doc.Doc(),
		attacher{key: "a", detached: &detached},
		attacher{key: "b", detached: &detached},
	))
	require.NoError(t, err)
	e.Destroy()
	e.Destroy()
	assert.Equal(t, []string{"b", "a"}, detached)
	assert.ErrorIs(t, e.Dispatch(e.State().Tr()), ErrDestroyed)
}
