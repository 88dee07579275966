package editor

import (
	"errors"
	"fmt"

	"github.com/choraleia/threadwriter/pkg/doc"
)

var (
	ErrTransactionRejected = errors.New("transaction rejected by filter")
	ErrStaleTransaction    = errors.New("transaction was built against another document")
	ErrAppendLoop          = errors.New("appended transactions did not settle")
	ErrDestroyed           = errors.New("editor destroyed")
)

// MetaAppendedTransaction is set on appended transactions and points at the
// transaction that triggered them.
const MetaAppendedTransaction = "appendedTransaction"

const maxAppendRounds = 32

// State is an immutable snapshot: a document, a cursor and the values of all
// plugin state fields.
type State struct {
	doc       *doc.Node
	selection int
	plugins   []Plugin
	fields    map[string]any
}

// NewState builds the initial state for d and initialises plugin fields in
// installation order.
func NewState(d *doc.Node, plugins ...Plugin) *State {
	s := &State{
		doc:     d,
		plugins: append([]Plugin(nil), plugins...),
		fields:  make(map[string]any, len(plugins)),
	}
	for _, p := range s.plugins {
		if f, ok := p.(StateField); ok {
			s.fields[p.Key()] = f.InitField(s)
		}
	}
	return s
}

func (s *State) Doc() *doc.Node { return s.doc }

func (s *State) Selection() int { return s.selection }

func (s *State) Plugins() []Plugin { return append([]Plugin(nil), s.plugins...) }

// Field returns the state field value stored under a plugin key.
func (s *State) Field(key string) any { return s.fields[key] }

// FieldOf returns the typed state field value of p.
func FieldOf[T any](s *State, p Plugin) (T, bool) {
	v, ok := s.fields[p.Key()].(T)
	return v, ok
}

// Tr starts a transaction against this state.
func (s *State) Tr() *doc.Transaction {
	return doc.NewTransaction(s.doc, s.selection)
}

// WithSelection returns a copy of the state with the cursor moved.
func (s *State) WithSelection(pos int) *State {
	next := *s
	tr := s.Tr().SetSelection(pos)
	next.selection = tr.Selection()
	return &next
}

// FilterTransaction asks every filter except the plugin at index ignore.
func (s *State) FilterTransaction(tr *doc.Transaction, ignore int) bool {
	for i, p := range s.plugins {
		if i == ignore {
			continue
		}
		if f, ok := p.(TransactionFilter); ok && !f.FilterTransaction(tr, s) {
			return false
		}
	}
	return true
}

// ApplyTransaction runs the full pipeline: filter the root transaction, apply
// it, then let appenders react until none of them has anything to add. Every
// appended transaction is filtered as well; a rejected one is skipped.
func (s *State) ApplyTransaction(root *doc.Transaction) (*State, []*doc.Transaction, error) {
	if !s.FilterTransaction(root, -1) {
		return s, nil, ErrTransactionRejected
	}
	next, err := s.applyInner(root)
	if err != nil {
		return s, nil, err
	}
	trs := []*doc.Transaction{root}

	type seenState struct {
		state *State
		n     int
	}
	var seen []seenState

	for round := 0; ; round++ {
		if round >= maxAppendRounds {
			return s, nil, ErrAppendLoop
		}
		haveNew := false
		for i, p := range s.plugins {
			appender, ok := p.(TransactionAppender)
			if !ok {
				continue
			}
			n, old := 0, s
			if seen != nil {
				n, old = seen[i].n, seen[i].state
			}
			var tr *doc.Transaction
			if n < len(trs) {
				tr = appender.AppendTransaction(trs[n:], old, next)
			}
			if tr != nil && next.FilterTransaction(tr, i) {
				tr.SetMeta(MetaAppendedTransaction, root)
				if seen == nil {
					seen = make([]seenState, len(s.plugins))
					for j := range s.plugins {
						if j < i {
							seen[j] = seenState{state: next, n: len(trs)}
						} else {
							seen[j] = seenState{state: s}
						}
					}
				}
				applied, err := next.applyInner(tr)
				if err != nil {
					return s, nil, fmt.Errorf("append transaction from %s: %w", p.Key(), err)
				}
				trs = append(trs, tr)
				next = applied
				haveNew = true
			}
			if seen != nil {
				seen[i] = seenState{state: next, n: len(trs)}
			}
		}
		if !haveNew {
			return next, trs, nil
		}
	}
}

func (s *State) applyInner(tr *doc.Transaction) (*State, error) {
	if tr.Before() != s.doc {
		return nil, ErrStaleTransaction
	}
	next := &State{
		doc:       tr.Doc(),
		selection: tr.Selection(),
		plugins:   s.plugins,
		fields:    make(map[string]any, len(s.fields)),
	}
	for _, p := range s.plugins {
		if f, ok := p.(StateField); ok {
			next.fields[p.Key()] = f.ApplyField(tr, s.fields[p.Key()], s, next)
		}
	}
	return next, nil
}
