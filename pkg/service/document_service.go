// Document Service - open documents, their editors and persistence
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/utils"
)

var ErrDocumentNotOpen = errors.New("document is not open")

// DocumentServiceOptions configures the thread plugin of every opened
// document.
type DocumentServiceOptions struct {
	RequireComposer   bool
	ObjectStoreScheme string
	Sender            SendHandler
	Stopper           StopHandler
	Catalog           ModelCatalog
	NewID             func() string
}

// DocumentService keeps one editor per open document. All editors share the
// emitter, so a stream event reaches every open document and each thread
// plugin picks out its own threads.
type DocumentService struct {
	store   *db.DocumentStore
	emitter *event.Emitter
	opts    DocumentServiceOptions
	logger  *slog.Logger

	mu   sync.Mutex
	open map[string]*OpenDocument

	offSettled func()
}

// OpenDocument is a document with a live editor.
type OpenDocument struct {
	id     string
	editor *editor.Editor
	plugin *ThreadPlugin

	mu      sync.Mutex
	saved   int64
	offEdit func()
}

func (d *OpenDocument) ID() string { return d.id }

func (d *OpenDocument) Editor() *editor.Editor { return d.editor }

func (d *OpenDocument) Plugin() *ThreadPlugin { return d.plugin }

func (d *OpenDocument) State() *editor.State { return d.editor.State() }

func (d *OpenDocument) StreamState() *StreamState { return StreamStateOf(d.editor.State()) }

// Version counts accepted document edits on top of the stored version.
func (d *OpenDocument) Version() int64 { return VersionOf(d.editor.State()) }

// Dirty reports whether there are edits not yet saved.
func (d *OpenDocument) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Version() > d.saved
}

const documentVersionKey = "documentVersion"

// versionField numbers document states: every transaction that changes the
// document adds one.
type versionField struct {
	base int64
}

func (versionField) Key() string { return documentVersionKey }

func (f versionField) InitField(*editor.State) any { return f.base }

func (versionField) ApplyField(tr *doc.Transaction, value any, _, _ *editor.State) any {
	v, _ := value.(int64)
	if tr.DocChanged() {
		v++
	}
	return v
}

// VersionOf returns the document version stored in s.
func VersionOf(s *editor.State) int64 {
	v, _ := s.Field(documentVersionKey).(int64)
	return v
}

// DocumentSnapshot is the current content of an open document.
type DocumentSnapshot struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Doc       *doc.Node `json:"doc"`
	Selection int       `json:"selection"`
	Receiving []string  `json:"receiving"`
}

func (d *OpenDocument) Snapshot() DocumentSnapshot {
	s := d.editor.State()
	receiving := StreamStateOf(s).ReceivingThreadIDs()
	if receiving == nil {
		receiving = []string{}
	}
	return DocumentSnapshot{
		ID:        d.id,
		Version:   VersionOf(s),
		Doc:       s.Doc(),
		Selection: s.Selection(),
		Receiving: receiving,
	}
}

// NewDocumentService creates the service and starts saving documents whose
// streams settle.
func NewDocumentService(store *db.DocumentStore, emitter *event.Emitter, opts DocumentServiceOptions) *DocumentService {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	s := &DocumentService{
		store:   store,
		emitter: emitter,
		opts:    opts,
		logger:  utils.GetLogger().With("component", "document-service"),
		open:    make(map[string]*OpenDocument),
	}
	s.offSettled = emitter.On(event.ThreadReceiving, s.onReceiving)
	return s
}

func (s *DocumentService) onReceiving(ev event.Event) {
	rev, ok := ev.(event.ThreadReceivingEvent)
	if !ok || rev.Receiving {
		return
	}
	if err := s.Save(rev.DocumentID); err != nil && !errors.Is(err, ErrDocumentNotOpen) {
		s.logger.Error("Failed to save settled document", "document", rev.DocumentID, "thread", rev.ThreadID, "error", err)
	}
}

// Create stores a new document. A nil content starts with an empty
// paragraph.
func (s *DocumentService) Create(title string, content *doc.Node) (*db.Document, error) {
	if content == nil {
		content = doc.Doc(doc.Paragraph())
	}
	if title == "" {
		title = "Untitled"
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	d := &db.Document{
		ID:      s.opts.NewID(),
		Title:   title,
		Content: string(raw),
	}
	if err := s.store.Create(d); err != nil {
		return nil, err
	}
	s.logger.Info("Document created", "document", d.ID, "title", title)
	return d, nil
}

func (s *DocumentService) List() ([]db.DocumentSummary, error) {
	return s.store.List()
}

func (s *DocumentService) Rename(id, title string) error {
	return s.store.Rename(id, title)
}

// Open returns the open document, loading it and giving it an editor when
// needed. Loaded documents are repaired before the editor sees them.
func (s *DocumentService) Open(id string) (*OpenDocument, error) {
	s.mu.Lock()
	if od, ok := s.open[id]; ok {
		s.mu.Unlock()
		return od, nil
	}
	od, repaired, err := s.load(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.open[id] = od
	s.mu.Unlock()

	s.logger.Info("Document opened", "document", id, "version", od.Version(), "repaired", repaired)
	s.emitter.Emit(event.DocumentOpenedEvent{DocumentID: id})
	if repaired {
		if err := s.Save(id); err != nil {
			s.logger.Warn("Failed to save repaired document", "document", id, "error", err)
		}
	}
	return od, nil
}

func (s *DocumentService) load(id string) (*OpenDocument, bool, error) {
	stored, err := s.store.Get(id)
	if err != nil {
		return nil, false, err
	}
	content, err := doc.Parse([]byte(stored.Content))
	if err != nil {
		return nil, false, fmt.Errorf("document %s: %w", id, err)
	}

	od := &OpenDocument{id: id, saved: stored.Version}
	plugin := NewThreadPlugin(ThreadPluginOptions{
		DocumentID:        id,
		RequireComposer:   s.opts.RequireComposer,
		ObjectStoreScheme: s.opts.ObjectStoreScheme,
		Emitter:           s.emitter,
		Sender:            s.opts.Sender,
		Stopper:           s.opts.Stopper,
		Dirty:             documentDirty{service: s, id: id},
		Catalog:           s.opts.Catalog,
		Prompter:          documentPrompter{emitter: s.emitter, id: id},
		NewID:             s.opts.NewID,
	})
	content, repaired, err := plugin.RepairDocument(content)
	if err != nil {
		return nil, false, fmt.Errorf("repair document %s: %w", id, err)
	}
	base := stored.Version
	if repaired {
		base++
	}

	e, err := editor.New(id, editor.NewState(content, plugin, versionField{base: base}))
	if err != nil {
		return nil, false, err
	}
	od.editor = e
	od.plugin = plugin
	od.offEdit = e.OnChange(func(c editor.Change) {
		if !c.DocChanged() {
			return
		}
		s.emitter.Emit(event.DocumentChangedEvent{DocumentID: id, Version: VersionOf(c.New)})
	})
	return od, repaired, nil
}

func (s *DocumentService) lookup(id string) (*OpenDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	od, ok := s.open[id]
	return od, ok
}

// IsOpen reports whether the document has an editor.
func (s *DocumentService) IsOpen(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

// OpenIDs returns the ids of the open documents, sorted.
func (s *DocumentService) OpenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes an open document to the store if it has unsaved edits.
func (s *DocumentService) Save(id string) error {
	od, ok := s.lookup(id)
	if !ok {
		return ErrDocumentNotOpen
	}
	return s.save(od)
}

func (s *DocumentService) save(od *OpenDocument) error {
	od.mu.Lock()
	st := od.editor.State()
	version := VersionOf(st)
	if version <= od.saved {
		od.mu.Unlock()
		return nil
	}
	raw, err := json.Marshal(st.Doc())
	if err != nil {
		od.mu.Unlock()
		return fmt.Errorf("encode document %s: %w", od.id, err)
	}
	if err := s.store.SaveContent(od.id, string(raw), version); err != nil {
		od.mu.Unlock()
		return err
	}
	od.saved = version
	od.mu.Unlock()

	s.logger.Debug("Document saved", "document", od.id, "version", version)
	s.emitter.Emit(event.DocumentSavedEvent{DocumentID: od.id, Version: version})
	return nil
}

// ReplaceContent swaps the whole body of an open document in one edit.
// Threads in the new content go through the same repair as any other edit.
func (s *DocumentService) ReplaceContent(id string, content *doc.Node) error {
	od, err := s.Open(id)
	if err != nil {
		return err
	}
	if content.Kind() != doc.KindDoc {
		return fmt.Errorf("replace content: root is %q, want %q", content.Type(), doc.TypeDoc)
	}
	err = od.editor.Update(func(st *editor.State) (*doc.Transaction, error) {
		tr := st.Tr()
		if err := tr.ReplaceWith(0, st.Doc().ContentSize(), content.Children()...); err != nil {
			return nil, err
		}
		return tr, nil
	})
	if err != nil {
		return err
	}
	return s.save(od)
}

// Close saves the document and destroys its editor.
func (s *DocumentService) Close(id string) error {
	s.mu.Lock()
	od, ok := s.open[id]
	if ok {
		delete(s.open, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrDocumentNotOpen
	}

	err := s.save(od)
	od.offEdit()
	od.editor.Destroy()
	s.emitter.Emit(event.DocumentClosedEvent{DocumentID: id})
	s.logger.Info("Document closed", "document", id)
	return err
}

// Delete closes the document if it is open and removes it from the store.
func (s *DocumentService) Delete(id string) error {
	s.mu.Lock()
	od, ok := s.open[id]
	if ok {
		delete(s.open, id)
	}
	s.mu.Unlock()
	if ok {
		od.offEdit()
		od.editor.Destroy()
		s.emitter.Emit(event.DocumentClosedEvent{DocumentID: id})
	}
	return s.store.Delete(id)
}

// Shutdown closes every open document and stops listening for settled
// streams.
func (s *DocumentService) Shutdown() {
	for _, id := range s.OpenIDs() {
		if err := s.Close(id); err != nil && !errors.Is(err, ErrDocumentNotOpen) {
			s.logger.Error("Failed to close document", "document", id, "error", err)
		}
	}
	s.offSettled()
}

// documentDirty saves the document when a thread attribute changed.
type documentDirty struct {
	service *DocumentService
	id      string
}

func (d documentDirty) NotifyDirty(state models.DirtyState) {
	if !state.RequiresSave {
		return
	}
	if err := d.service.Save(d.id); err != nil {
		d.service.logger.Error("Failed to save dirty document", "document", d.id, "error", err)
	}
}

// documentPrompter forwards user-facing messages to the document's clients.
type documentPrompter struct {
	emitter *event.Emitter
	id      string
}

func (p documentPrompter) Prompt(message string) {
	p.emitter.Emit(event.UserPromptEvent{DocumentID: p.id, Message: message})
}
