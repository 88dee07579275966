package service

import (
	"fmt"
	"sort"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/thread"
)

// Thread children left behind by older document versions.
var legacyThreadChildren = map[string]bool{
	"aiChatThreadControls": true,
	"aiChatThreadStatus":   true,
}

// FilterTransaction rejects edits that would leave a thread without children.
func (p *ThreadPlugin) FilterTransaction(tr *doc.Transaction, _ *editor.State) bool {
	if !tr.DocChanged() {
		return true
	}
	for _, t := range thread.Threads(tr.Doc()) {
		if t.Node.ChildCount() == 0 {
			p.logger.Debug("Rejecting edit that empties a thread", "thread", t.ID(), "pos", t.Pos)
			return false
		}
	}
	return true
}

// AppendTransaction restores the required thread shape after every edit.
func (p *ThreadPlugin) AppendTransaction(trs []*doc.Transaction, _, next *editor.State) *doc.Transaction {
	changed := false
	for _, tr := range trs {
		if tr.DocChanged() {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}
	tr := next.Tr()
	if err := p.repair(tr); err != nil {
		p.logger.Warn("Thread repair failed", "error", err)
		return nil
	}
	if !tr.DocChanged() {
		return nil
	}
	return tr
}

// RepairDocument returns d with every thread brought into shape, and whether
// anything had to change. It is used on documents loaded from storage before
// they get an editor.
func (p *ThreadPlugin) RepairDocument(d *doc.Node) (*doc.Node, bool, error) {
	tr := doc.NewTransaction(d, 0)
	if err := p.repair(tr); err != nil {
		return d, false, err
	}
	return tr.Doc(), tr.DocChanged(), nil
}

// repair walks the threads back to front so that fixing one never moves the
// ones still to be visited.
func (p *ThreadPlugin) repair(tr *doc.Transaction) error {
	threads := thread.Threads(tr.Doc())
	for i := len(threads) - 1; i >= 0; i-- {
		if err := p.repairThread(tr, threads[i].Pos); err != nil {
			return fmt.Errorf("repair thread at %d: %w", threads[i].Pos, err)
		}
	}
	return nil
}

func (p *ThreadPlugin) repairThread(tr *doc.Transaction, pos int) error {
	t := tr.Doc().NodeAt(pos)
	if t == nil || t.Kind() != doc.KindThread {
		return doc.ErrNoNodeAtPosition
	}
	if t.AttrString(models.AttrThreadID) == "" {
		if err := tr.SetNodeAttrs(pos, doc.Attrs{models.AttrThreadID: p.opts.NewID()}); err != nil {
			return err
		}
	}

	type child struct {
		node *doc.Node
		pos  int
	}
	var (
		drop     []child
		composer *child
		kept     int
	)
	at := pos + 1
	for _, c := range t.Children() {
		switch {
		case c.Kind() == doc.KindOther && legacyThreadChildren[c.Type()]:
			drop = append(drop, child{c, at})
		case c.Kind() == doc.KindComposer:
			composer = &child{c, at}
			kept++
		default:
			kept++
		}
		at += c.NodeSize()
	}
	end := at

	// Additions go at the end first so the deletions below keep their positions.
	switch {
	case p.opts.RequireComposer && composer == nil:
		if err := tr.Insert(end, doc.Composer(doc.Paragraph())); err != nil {
			return err
		}
	case p.opts.RequireComposer && composer.pos+composer.node.NodeSize() != end:
		if err := tr.Insert(end, composer.node); err != nil {
			return err
		}
		drop = append(drop, *composer)
	case !p.opts.RequireComposer && kept == 0:
		if err := tr.Insert(end, doc.Paragraph()); err != nil {
			return err
		}
	}

	// Removals back to front; the moved composer may sit between legacy nodes.
	sort.Slice(drop, func(i, j int) bool { return drop[i].pos > drop[j].pos })
	for _, c := range drop {
		if err := tr.Delete(c.pos, c.pos+c.node.NodeSize()); err != nil {
			return err
		}
	}
	return nil
}
