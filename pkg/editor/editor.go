package editor

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/utils"
)

// Change describes one accepted dispatch.
type Change struct {
	Old          *State
	New          *State
	Transactions []*doc.Transaction
}

// DocChanged reports whether any transaction of the change edited the document.
func (c Change) DocChanged() bool {
	for _, tr := range c.Transactions {
		if tr.DocChanged() {
			return true
		}
	}
	return false
}

// Listener is called after every accepted dispatch, outside the editor lock.
type Listener func(Change)

// Editor hosts one document. All state changes go through Dispatch or
// Update, which are serialised.
type Editor struct {
	id     string
	mu     sync.Mutex
	state  *State
	logger *slog.Logger

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int

	detach    []func()
	destroyed bool
}

// New creates an editor for state and attaches every ViewAttacher plugin. If
// one of them fails, the ones already attached are detached again.
func New(id string, state *State) (*Editor, error) {
	e := &Editor{
		id:        id,
		state:     state,
		logger:    utils.GetLogger().With("component", "editor", "document", id),
		listeners: make(map[int]Listener),
	}
	for _, p := range state.plugins {
		a, ok := p.(ViewAttacher)
		if !ok {
			continue
		}
		detach, err := a.AttachView(e)
		if err != nil {
			e.runDetach()
			return nil, fmt.Errorf("attach plugin %s: %w", p.Key(), err)
		}
		if detach != nil {
			e.detach = append(e.detach, detach)
		}
	}
	return e, nil
}

func (e *Editor) ID() string { return e.id }

// State returns the current state snapshot.
func (e *Editor) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Dispatch applies tr, which must have been built against the current state.
func (e *Editor) Dispatch(tr *doc.Transaction) error {
	return e.Update(func(*State) (*doc.Transaction, error) { return tr, nil })
}

// Update builds a transaction from the current state and applies it
// atomically. A nil transaction from build is a no-op.
func (e *Editor) Update(build func(s *State) (*doc.Transaction, error)) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	old := e.state
	tr, err := build(old)
	if err != nil || tr == nil {
		e.mu.Unlock()
		return err
	}
	next, trs, err := old.ApplyTransaction(tr)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	e.mu.Unlock()

	e.notify(Change{Old: old, New: next, Transactions: trs})
	return nil
}

// OnChange registers l and returns a func removing it.
func (e *Editor) OnChange(l Listener) func() {
	e.listenerMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.listenerMu.Unlock()

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

func (e *Editor) notify(c Change) {
	e.listenerMu.RLock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, e.listeners[id])
	}
	e.listenerMu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
}

// Destroy detaches all plugins. It is safe to call more than once.
func (e *Editor) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.mu.Unlock()

	e.runDetach()
	e.logger.Debug("Editor destroyed")
}

func (e *Editor) runDetach() {
	for i := len(e.detach) - 1; i >= 0; i-- {
		e.detach[i]()
	}
	e.detach = nil
}
