package event

import (
	"context"

	"github.com/choraleia/threadwriter/pkg/models"
)

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	AIStream        = "ai.stream"
	DocumentChanged = "document.changed"
	DocumentSaved   = "document.saved"
	DocumentOpened  = "document.opened"
	DocumentClosed  = "document.closed"
	ThreadReceiving = "thread.receiving"
	UserPrompt      = "user.prompt"
)

// DocumentScoped is implemented by events that belong to one document.
type DocumentScoped interface {
	Document() string
}

// ============================================================================
// Stream Events
// ============================================================================

// StreamEvent carries one inbound streaming message to every open document.
type StreamEvent struct {
	models.StreamEvent
}

func (e StreamEvent) EventName() string { return AIStream }

// Publisher delivers stream events to the open documents, either in process
// or through a broker.
type Publisher interface {
	Publish(ctx context.Context, ev models.StreamEvent) error
}

// LocalPublisher publishes on an in-process emitter.
type LocalPublisher struct {
	Emitter *Emitter
}

func (p LocalPublisher) Publish(_ context.Context, ev models.StreamEvent) error {
	p.Emitter.Emit(StreamEvent{StreamEvent: ev})
	return nil
}

// ============================================================================
// Document Events
// ============================================================================

// DocumentChangedEvent is emitted after an accepted edit changed a document.
type DocumentChangedEvent struct {
	DocumentID string `json:"documentId"`
	Version    int64  `json:"version"`
}

func (e DocumentChangedEvent) EventName() string { return DocumentChanged }
func (e DocumentChangedEvent) Document() string { return e.DocumentID }

// DocumentSavedEvent is emitted after a document was persisted.
type DocumentSavedEvent struct {
	DocumentID string `json:"documentId"`
	Version    int64  `json:"version"`
}

func (e DocumentSavedEvent) EventName() string { return DocumentSaved }
func (e DocumentSavedEvent) Document() string { return e.DocumentID }

// DocumentOpenedEvent is emitted when a document gets an editor.
type DocumentOpenedEvent struct {
	DocumentID string `json:"documentId"`
}

func (e DocumentOpenedEvent) EventName() string { return DocumentOpened }
func (e DocumentOpenedEvent) Document() string { return e.DocumentID }

// DocumentClosedEvent is emitted when a document's editor is destroyed.
type DocumentClosedEvent struct {
	DocumentID string `json:"documentId"`
}

func (e DocumentClosedEvent) EventName() string { return DocumentClosed }
func (e DocumentClosedEvent) Document() string { return e.DocumentID }

// ThreadReceivingEvent is emitted when a thread starts or stops receiving a stream.
type ThreadReceivingEvent struct {
	DocumentID string `json:"documentId"`
	ThreadID   string `json:"threadId"`
	Receiving  bool   `json:"receiving"`
}

func (e ThreadReceivingEvent) EventName() string { return ThreadReceiving }
func (e ThreadReceivingEvent) Document() string { return e.DocumentID }

// UserPromptEvent carries a message the user has to see, such as a rejected
// submit.
type UserPromptEvent struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

func (e UserPromptEvent) EventName() string { return UserPrompt }
func (e UserPromptEvent) Document() string { return e.DocumentID }
