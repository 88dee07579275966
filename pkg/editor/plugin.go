// Package editor hosts documents: it owns the current state, runs the
// plugin transaction pipeline and serialises every change to a document.
package editor

import "github.com/choraleia/threadwriter/pkg/doc"

// Plugin is anything installed into a State. Capabilities are discovered by
// type assertion against the interfaces below.
type Plugin interface {
	Key() string
}

// StateField keeps plugin-local state next to the document. ApplyField must
// return a new value rather than mutate the old one.
type StateField interface {
	Plugin
	InitField(s *State) any
	ApplyField(tr *doc.Transaction, value any, old, next *State) any
}

// TransactionFilter may veto a transaction before it is applied.
type TransactionFilter interface {
	Plugin
	FilterTransaction(tr *doc.Transaction, s *State) bool
}

// TransactionAppender may answer applied transactions with a follow-up
// transaction built against next. Returning nil appends nothing.
type TransactionAppender interface {
	Plugin
	AppendTransaction(trs []*doc.Transaction, old, next *State) *doc.Transaction
}

// ViewAttacher is notified when an Editor starts hosting a state with the
// plugin. The returned detach func is called exactly once when the editor is
// destroyed or when attaching a later plugin fails.
type ViewAttacher interface {
	Plugin
	AttachView(e *Editor) (detach func(), err error)
}
