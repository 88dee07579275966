package event

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/choraleia/threadwriter/pkg/utils"
)

// WSMessage is the JSON message sent over WebSocket.
type WSMessage struct {
	Event string         `json:"event"`          // Event name (e.g., "document.changed")
	Data  map[string]any `json:"data,omitempty"` // Event-specific data
	TS    int64          `json:"ts"`             // Timestamp (Unix ms)
}

// WSHandler streams emitter events to WebSocket clients.
type WSHandler struct {
	emitter  *Emitter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WebSocket handler for emitter.
func NewWSHandler(emitter *Emitter) *WSHandler {
	return &WSHandler{
		emitter: emitter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: utils.GetLogger().With("component", "ws"),
	}
}

// wsFilter decides which events a connection receives.
type wsFilter struct {
	events   map[string]bool
	document string
}

func parseWSFilter(events, document string) wsFilter {
	f := wsFilter{document: document}
	if events != "" {
		f.events = make(map[string]bool)
		for _, e := range strings.Split(events, ",") {
			if e = strings.TrimSpace(e); e != "" {
				f.events[e] = true
			}
		}
	}
	return f
}

func (f wsFilter) accept(ev Event) bool {
	if f.events != nil && !f.events[ev.EventName()] {
		return false
	}
	if f.document != "" {
		if scoped, ok := ev.(DocumentScoped); ok && scoped.Document() != f.document {
			return false
		}
	}
	return true
}

// Handle is the Gin handler for WebSocket connections.
// Query params:
//   - events: comma-separated event names to subscribe (empty = all)
//   - document: only deliver document events of this document
//
// Example: /ws/events?events=document.changed,thread.receiving&document=abc
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	filter := parseWSFilter(c.Query("events"), c.Query("document"))

	// Channel for sending events to this client
	sendCh := make(chan WSMessage, 64)
	done := make(chan struct{})

	unsubscribe := h.emitter.OnAny(func(ev Event) {
		if !filter.accept(ev) {
			return
		}
		msg := WSMessage{
			Event: ev.EventName(),
			Data:  eventToData(ev),
			TS:    time.Now().UnixMilli(),
		}
		select {
		case sendCh <- msg:
		default:
			// Drop if buffer is full
			h.logger.Debug("Dropped event, buffer full", "event", ev.EventName())
		}
	})
	defer unsubscribe()

	// Reader goroutine - keeps connection alive
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var writeMu sync.Mutex

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case msg := <-sendCh:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteJSON(msg)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// eventToData converts an Event to a map for JSON serialization.
func eventToData(ev Event) map[string]any {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
