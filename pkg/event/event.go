// Package event provides a lightweight in-process notification system.
//
// Design principles:
// - Each event type is a separate Go type for type safety
// - Stream events carry their full payload; document events are
//   notifications and clients fetch the document over HTTP afterwards
// - Listeners run synchronously on the emitting goroutine
package event

import (
	"sync"

	"github.com/choraleia/threadwriter/pkg/utils"
)

// Event is the interface all event types must implement.
type Event interface {
	// EventName returns the unique name for this event type (e.g., "ai.stream")
	EventName() string
}

// Listener is a callback function for handling events.
type Listener func(Event)

type entry struct {
	id int
	fn Listener
}

// Emitter manages event subscriptions and dispatching.
type Emitter struct {
	mu           sync.RWMutex
	nextID       int
	listeners    map[string][]entry // eventName -> listeners
	allListeners []entry            // listeners for all events
}

// NewEmitter creates a new event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]entry),
	}
}

// On subscribes to a specific event type.
// Returns an unsubscribe function; calling it more than once is harmless.
func (e *Emitter) On(eventName string, fn Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[eventName] = append(e.listeners[eventName], entry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.listeners[eventName] = without(e.listeners[eventName], id)
		if len(e.listeners[eventName]) == 0 {
			delete(e.listeners, eventName)
		}
	}
}

// OnAny subscribes to all events.
func (e *Emitter) OnAny(fn Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.allListeners = append(e.allListeners, entry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.allListeners = without(e.allListeners, id)
	}
}

// ListenerCount returns how many listeners would receive an event with this name.
func (e *Emitter) ListenerCount(eventName string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[eventName]) + len(e.allListeners)
}

// Emit dispatches an event to all matching listeners.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	// Copy listeners to avoid holding lock during callbacks
	specific := append([]entry(nil), e.listeners[ev.EventName()]...)
	all := append([]entry(nil), e.allListeners...)
	e.mu.RUnlock()

	utils.GetLogger().Debug("Emitting event", "event", ev.EventName(), "specific", len(specific), "wildcard", len(all))

	// Dispatch to specific listeners
	for _, l := range specific {
		l.fn(ev)
	}
	// Dispatch to wildcard listeners
	for _, l := range all {
		l.fn(ev)
	}
}

func without(entries []entry, id int) []entry {
	out := entries[:0:0]
	for _, en := range entries {
		if en.id != id {
			out = append(out, en)
		}
	}
	return out
}
