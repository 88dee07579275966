// Stream HTTP handlers - inbound streaming events from external transports
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/models"
)

// maxEventsBody caps the size of one POST /stream/events body.
const maxEventsBody = 8 << 20

// StreamHandler accepts streaming events and hands them to the publisher,
// which delivers them to every open document.
type StreamHandler struct {
	publisher event.Publisher
	runs      *db.RunStore
}

func NewStreamHandler(publisher event.Publisher) *StreamHandler {
	return &StreamHandler{publisher: publisher}
}

// WithRuns serves the run history of threads from runs.
func (h *StreamHandler) WithRuns(runs *db.RunStore) *StreamHandler {
	h.runs = runs
	return h
}

// RegisterRoutes registers stream routes
func (h *StreamHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/stream/events", h.PublishEvents)
	if h.runs != nil {
		r.GET("/stream/runs", h.ListRuns)
	}
}

// ListRuns returns the model runs of a thread, newest first
// GET /api/v1/stream/runs?threadId=...&limit=...
func (h *StreamHandler) ListRuns(c *gin.Context) {
	threadID := c.Query("threadId")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: "threadId is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.runs.ListByThread(threadID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	if runs == nil {
		runs = []db.StreamRun{}
	}
	respond(c, http.StatusOK, runs)
}

// PublishEvents takes one event object or an array of them, in order
// POST /api/v1/stream/events
func (h *StreamHandler) PublishEvents(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventsBody)
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, models.Response{Code: status, Message: "Invalid stream event: " + err.Error()})
		return
	}
	var (
		events []models.StreamEvent
		err    error
	)
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &events)
	} else {
		var ev models.StreamEvent
		err = json.Unmarshal(trimmed, &ev)
		events = append(events, ev)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: "Invalid stream event: " + err.Error()})
		return
	}
	for i, ev := range events {
		if ev.ThreadKey() == "" {
			c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: "threadId or aiChatThreadId is required", Data: gin.H{"index": i}})
			return
		}
	}
	for _, ev := range events {
		if err := h.publisher.Publish(c.Request.Context(), ev); err != nil {
			fail(c, err)
			return
		}
	}
	respond(c, http.StatusAccepted, gin.H{"published": len(events)})
}
