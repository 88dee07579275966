package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/service"
)

type fakeBackend struct {
	mu      sync.Mutex
	sent    []models.SendRequest
	stopped []string
}

func (b *fakeBackend) Send(_ context.Context, req models.SendRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, req)
	return nil
}

func (b *fakeBackend) Stop(_ context.Context, req models.StopRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = append(b.stopped, req.ThreadID)
	return nil
}

type fixedCatalog []models.AvailableModel

func (c fixedCatalog) AvailableModels() []models.AvailableModel { return c }

func newTestRouter(t *testing.T) (*gin.Engine, *fakeBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	emitter := event.NewEmitter()
	backend := &fakeBackend{}
	catalog := fixedCatalog{{Provider: "openai", Model: "gpt-4o", ShortTitle: "GPT-4o"}}
	docs := service.NewDocumentService(db.NewDocumentStore(gdb), emitter, service.DocumentServiceOptions{
		RequireComposer: true,
		Sender:          backend,
		Stopper:         backend,
		Catalog:         catalog,
		NewID:           newID,
	})
	t.Cleanup(docs.Shutdown)

	r := gin.New()
	api := r.Group("/api/v1")
	NewDocumentHandler(docs, catalog).RegisterRoutes(api)
	NewStreamHandler(event.LocalPublisher{Emitter: emitter}).WithRuns(db.NewRunStore(gdb)).RegisterRoutes(api)
	return r, backend
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestDocumentThreadFlow(t *testing.T) {
	r, backend := newTestRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/documents", map[string]any{"title": "Notes"})
	require.Equal(t, http.StatusCreated, code)
	var created db.DocumentSummary
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "Notes", created.Title)
	base := "/api/v1/documents/" + created.ID

	code, env = call(t, r, http.MethodPost, base+"/threads", map[string]any{"at": 1})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var tv struct {
		ThreadID string `json:"threadId"`
		AIModel  string `json:"aiModel"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tv))
	assert.NotEmpty(t, tv.ThreadID)
	assert.Equal(t, "openai:gpt-4o", tv.AIModel)

	code, env = call(t, r, http.MethodPost, base+"/interactions", map[string]any{"kind": "submit", "threadId": tv.ThreadID})
	assert.Equal(t, http.StatusBadRequest, code, "blank composer has nothing to send")
	assert.Empty(t, backend.sent)

	code, _ = call(t, r, http.MethodPost, "/api/v1/stream/events", []models.StreamEvent{
		{Status: models.StreamStart, ThreadID: tv.ThreadID, AIProvider: "openai"},
		{Status: models.StreamStreaming, ThreadID: tv.ThreadID, Segment: &models.StreamSegment{Segment: "Hi", Type: models.SegmentParagraph, IsBlockDefining: true}},
	})
	require.Equal(t, http.StatusAccepted, code)

	code, env = call(t, r, http.MethodGet, base+"/threads", nil)
	require.Equal(t, http.StatusOK, code)
	var dv struct {
		Threads []struct {
			ThreadID  string `json:"threadId"`
			Receiving bool   `json:"receiving"`
			Items     []struct {
				Kind string `json:"kind"`
			} `json:"items"`
		} `json:"threads"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dv))
	require.Len(t, dv.Threads, 1)
	assert.True(t, dv.Threads[0].Receiving)
	require.Len(t, dv.Threads[0].Items, 2)
	assert.Equal(t, "response", dv.Threads[0].Items[0].Kind)

	code, _ = call(t, r, http.MethodPost, base+"/interactions", map[string]any{"kind": "stop", "threadId": tv.ThreadID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{tv.ThreadID}, backend.stopped)

	code, _ = call(t, r, http.MethodPost, "/api/v1/stream/events", models.StreamEvent{Status: models.StreamEnd, AIChatThreadID: tv.ThreadID})
	require.Equal(t, http.StatusAccepted, code)

	code, env = call(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	var snap service.DocumentSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Empty(t, snap.Receiving)
	assert.Greater(t, snap.Version, int64(0))

	code, _ = call(t, r, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, r, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, code)
	var list []db.DocumentSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, snap.Version, list[0].Version)
}

func TestDocumentErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	code, _ := call(t, r, http.MethodGet, "/api/v1/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/documents", map[string]any{"content": map[string]any{"type": "paragraph"}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/stream/events", `{"status":"STREAMING"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/stream/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	oversized := `{"threadId":"t1","segment":{"segment":"` + strings.Repeat("a", maxEventsBody) + `"}}`
	code, _ = call(t, r, http.MethodPost, "/api/v1/stream/events", oversized)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/documents/missing/close", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, r, http.MethodGet, "/api/v1/stream/runs", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := call(t, r, http.MethodGet, "/api/v1/stream/runs?threadId=t1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestInteractionDropdown(t *testing.T) {
	r, _ := newTestRouter(t)
	doc := map[string]any{
		"type": "doc",
		"content": []any{map[string]any{
			"type":    "aiChatThread",
			"attrs":   map[string]any{"threadId": "t1", "aiModel": "openai:gpt-4o"},
			"content": []any{map[string]any{"type": "paragraph", "content": []any{map[string]any{"type": "text", "text": "hi"}}}},
		}},
	}
	code, env := call(t, r, http.MethodPost, "/api/v1/documents", map[string]any{"title": "x", "content": doc})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var created db.DocumentSummary
	require.NoError(t, json.Unmarshal(env.Data, &created))
	base := "/api/v1/documents/" + created.ID

	code, _ = call(t, r, http.MethodPost, base+"/interactions", map[string]any{
		"kind": "dropdown", "threadId": "t1", "dropdownId": "context", "option": "Document",
	})
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodPost, base+"/interactions", map[string]any{
		"kind": "dropdown", "threadId": "t1", "dropdownId": "context", "option": "Galaxy",
	})
	assert.Equal(t, http.StatusBadRequest, code, env.Message)

	code, _ = call(t, r, http.MethodPost, base+"/interactions", map[string]any{"kind": "dropdown"})
	assert.Equal(t, http.StatusBadRequest, code)
}
