// Thread Plugin - coordinates AI chat threads inside one open document
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/thread"
	"github.com/choraleia/threadwriter/pkg/utils"
)

const ThreadPluginKey = "aiChatThread"

// metaReceiving marks transactions that open or settle a thread's stream.
const metaReceiving = "aiChatThread.receiving"

var (
	ErrNotAttached      = errors.New("thread plugin is not attached to an editor")
	ErrNoModelSelected  = errors.New("no AI model selected")
	ErrNothingToSend    = errors.New("thread has no content to send")
	ErrNoSendHandler    = errors.New("no send handler configured")
	ErrUnknownDropdown  = errors.New("unknown dropdown")
	ErrInvalidOption    = errors.New("invalid dropdown option")
	ErrUnknownModel     = errors.New("unknown model")
	ErrNoModelAvailable = errors.New("no model available")
)

// SendHandler hands assembled conversations to the model backend.
type SendHandler interface {
	Send(ctx context.Context, req models.SendRequest) error
}

// StopHandler asks the model backend to stop generating for a thread.
type StopHandler interface {
	Stop(ctx context.Context, req models.StopRequest) error
}

// DirtyNotifier is told when an attribute edit changed the document.
type DirtyNotifier interface {
	NotifyDirty(state models.DirtyState)
}

// ModelCatalog lists the models a thread may use.
type ModelCatalog interface {
	AvailableModels() []models.AvailableModel
}

// Prompter shows a blocking message to the user.
type Prompter interface {
	Prompt(message string)
}

// ThreadPluginOptions wires a ThreadPlugin to its collaborators. Only
// DocumentID is required.
type ThreadPluginOptions struct {
	DocumentID        string
	RequireComposer   bool
	ObjectStoreScheme string
	Emitter           *event.Emitter
	Sender            SendHandler
	Stopper           StopHandler
	Dirty             DirtyNotifier
	Catalog           ModelCatalog
	Prompter          Prompter
	NewID             func() string
}

// ThreadPlugin keeps threads well formed and streams AI output into them. One
// instance serves exactly one editor.
type ThreadPlugin struct {
	opts   ThreadPluginOptions
	logger *slog.Logger

	mu     sync.RWMutex
	editor *editor.Editor

	// locate finds the response a chunk goes to.
	locate func(d *doc.Node, threadID string) thread.ResponseMatch
}

// NewThreadPlugin creates a thread plugin.
func NewThreadPlugin(opts ThreadPluginOptions) *ThreadPlugin {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ObjectStoreScheme == "" {
		opts.ObjectStoreScheme = "s3"
	}
	return &ThreadPlugin{
		opts:   opts,
		logger: utils.GetLogger().With("component", "thread-plugin", "document", opts.DocumentID),
		locate: thread.FindResponseNode,
	}
}

func (p *ThreadPlugin) Key() string { return ThreadPluginKey }

// Editor returns the editor the plugin is attached to, or nil.
func (p *ThreadPlugin) Editor() *editor.Editor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.editor
}

func (p *ThreadPlugin) attached() (*editor.Editor, error) {
	if e := p.Editor(); e != nil {
		return e, nil
	}
	return nil, ErrNotAttached
}

// AttachView subscribes to the stream event source for the lifetime of the
// editor.
func (p *ThreadPlugin) AttachView(e *editor.Editor) (func(), error) {
	p.mu.Lock()
	if p.editor != nil {
		p.mu.Unlock()
		return nil, errors.New("thread plugin already attached")
	}
	p.editor = e
	p.mu.Unlock()

	offChange := e.OnChange(p.reportReceiving)
	unsubscribe := func() {}
	if p.opts.Emitter != nil {
		unsubscribe = p.opts.Emitter.On(event.AIStream, func(ev event.Event) {
			se, ok := ev.(event.StreamEvent)
			if !ok {
				return
			}
			if err := p.HandleStreamEvent(se.StreamEvent); err != nil {
				p.logger.Warn("Stream event not applied", "thread", se.ThreadKey(), "error", err)
			}
		})
	}
	return func() {
		unsubscribe()
		offChange()
		p.mu.Lock()
		p.editor = nil
		p.mu.Unlock()
	}, nil
}

// ============================================================================
// Plugin-local stream state
// ============================================================================

// Decoration highlights a response that is currently receiving content.
type Decoration struct {
	From     int
	To       int
	ThreadID string
	Class    string
}

// DecorationReceiving is the class of receiving-response decorations.
const DecorationReceiving = "ai-response-receiving"

// StreamState is the plugin's per-document state. Values are immutable; every
// accepted transaction produces a new one.
type StreamState struct {
	receiving   map[string]struct{}
	decorations []Decoration
}

// IsReceiving reports whether the thread has an open stream.
func (s *StreamState) IsReceiving(threadID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.receiving[threadID]
	return ok
}

// ReceivingThreadIDs returns the threads with an open stream, sorted.
func (s *StreamState) ReceivingThreadIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.receiving))
	for id := range s.receiving {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Decorations returns a copy of the current decorations.
func (s *StreamState) Decorations() []Decoration {
	if s == nil {
		return nil
	}
	return append([]Decoration(nil), s.decorations...)
}

type receivingChange struct {
	ThreadID  string
	Receiving bool
}

// StreamStateOf returns the plugin state stored in s.
func StreamStateOf(s *editor.State) *StreamState {
	v, _ := s.Field(ThreadPluginKey).(*StreamState)
	return v
}

func (p *ThreadPlugin) InitField(s *editor.State) any {
	return &StreamState{receiving: map[string]struct{}{}}
}

func (p *ThreadPlugin) ApplyField(tr *doc.Transaction, value any, _, next *editor.State) any {
	prev, _ := value.(*StreamState)
	if prev == nil {
		prev = &StreamState{receiving: map[string]struct{}{}}
	}
	changes, _ := tr.Meta(metaReceiving).([]receivingChange)
	if !tr.DocChanged() && len(changes) == 0 {
		return prev
	}

	receiving := make(map[string]struct{}, len(prev.receiving)+len(changes))
	for id := range prev.receiving {
		receiving[id] = struct{}{}
	}
	for _, c := range changes {
		if c.Receiving {
			receiving[c.ThreadID] = struct{}{}
		} else {
			delete(receiving, c.ThreadID)
		}
	}

	d := next.Doc()
	if tr.DocChanged() {
		present := map[string]bool{}
		for _, id := range thread.ThreadIDs(d) {
			present[id] = true
		}
		for id := range receiving {
			if !present[id] {
				delete(receiving, id)
			}
		}
	}

	st := &StreamState{receiving: receiving}
	for _, id := range st.ReceivingThreadIDs() {
		m := thread.FindResponseNode(d, id)
		if !m.Found {
			continue
		}
		st.decorations = append(st.decorations, Decoration{
			From:     m.Pos,
			To:       m.EndOfNodePos,
			ThreadID: id,
			Class:    DecorationReceiving,
		})
	}
	return st
}

func markReceiving(tr *doc.Transaction, threadID string, receiving bool) {
	changes, _ := tr.Meta(metaReceiving).([]receivingChange)
	tr.SetMeta(metaReceiving, append(changes, receivingChange{ThreadID: threadID, Receiving: receiving}))
}

// reportReceiving emits a ThreadReceivingEvent for every thread whose
// receiving mark flipped in c.
func (p *ThreadPlugin) reportReceiving(c editor.Change) {
	if p.opts.Emitter == nil {
		return
	}
	before, after := StreamStateOf(c.Old), StreamStateOf(c.New)
	if before == after {
		return
	}
	for _, id := range before.ReceivingThreadIDs() {
		if !after.IsReceiving(id) {
			p.emitReceiving(id, false)
		}
	}
	for _, id := range after.ReceivingThreadIDs() {
		if !before.IsReceiving(id) {
			p.emitReceiving(id, true)
		}
	}
}

func (p *ThreadPlugin) emitReceiving(threadID string, receiving bool) {
	p.logger.Debug("Thread receiving changed", "thread", threadID, "receiving", receiving)
	p.opts.Emitter.Emit(event.ThreadReceivingEvent{
		DocumentID: p.opts.DocumentID,
		ThreadID:   threadID,
		Receiving:  receiving,
	})
}
