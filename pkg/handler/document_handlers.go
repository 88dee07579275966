// Document HTTP handlers - documents, threads and UI interactions
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/service"
	"github.com/choraleia/threadwriter/pkg/thread"
	"github.com/choraleia/threadwriter/pkg/view"
)

// DocumentHandler handles document-related HTTP requests
type DocumentHandler struct {
	documents *service.DocumentService
	catalog   service.ModelCatalog
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *service.DocumentService, catalog service.ModelCatalog) *DocumentHandler {
	return &DocumentHandler{documents: documents, catalog: catalog}
}

// RegisterRoutes registers document routes
func (h *DocumentHandler) RegisterRoutes(r *gin.RouterGroup) {
	documents := r.Group("/documents")
	{
		documents.GET("", h.ListDocuments)
		documents.POST("", h.CreateDocument)
		documents.GET("/:id", h.GetDocument)
		documents.PUT("/:id", h.ReplaceDocument)
		documents.PATCH("/:id", h.RenameDocument)
		documents.DELETE("/:id", h.DeleteDocument)
		documents.POST("/:id/save", h.SaveDocument)
		documents.POST("/:id/close", h.CloseDocument)

		// Threads
		documents.GET("/:id/threads", h.ListThreads)
		documents.POST("/:id/threads", h.InsertThread)
		documents.POST("/:id/interactions", h.Interact)
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, models.Response{Code: status, Message: "ok", Data: data})
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	c.JSON(status, models.Response{Code: status, Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrDocumentNotFound),
		errors.Is(err, thread.ErrThreadNotFound),
		errors.Is(err, service.ErrDocumentNotOpen):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidOption),
		errors.Is(err, service.ErrUnknownDropdown),
		errors.Is(err, service.ErrUnknownModel),
		errors.Is(err, service.ErrNothingToSend),
		errors.Is(err, service.ErrMissingThreadID),
		errors.Is(err, view.ErrInvalidInteraction),
		errors.Is(err, doc.ErrInvalidPosition):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoModelSelected),
		errors.Is(err, service.ErrNoModelAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, db.ErrVersionConflict),
		errors.Is(err, editor.ErrTransactionRejected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type createDocumentRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content,omitempty"`
}

type replaceDocumentRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

type renameDocumentRequest struct {
	Title string `json:"title" binding:"required"`
}

type insertThreadRequest struct {
	At *int `json:"at,omitempty"`
}

// ListDocuments lists stored documents
// GET /api/v1/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	list, err := h.documents.List()
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []db.DocumentSummary{}
	}
	respond(c, http.StatusOK, list)
}

// CreateDocument stores a new document
// POST /api/v1/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	var content *doc.Node
	if len(req.Content) > 0 {
		n, err := doc.Parse(req.Content)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}
		content = n
	}
	d, err := h.documents.Create(req.Title, content)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, db.DocumentSummary{ID: d.ID, Title: d.Title, Version: d.Version, UpdatedAt: d.UpdatedAt})
}

// GetDocument opens a document and returns its current content
// GET /api/v1/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	od, err := h.documents.Open(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, od.Snapshot())
}

// ReplaceDocument replaces the whole document body
// PUT /api/v1/documents/:id
func (h *DocumentHandler) ReplaceDocument(c *gin.Context) {
	var req replaceDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	content, err := doc.Parse(req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	id := c.Param("id")
	if err := h.documents.ReplaceContent(id, content); err != nil {
		fail(c, err)
		return
	}
	h.snapshot(c, id)
}

// RenameDocument changes a document's title
// PATCH /api/v1/documents/:id
func (h *DocumentHandler) RenameDocument(c *gin.Context) {
	var req renameDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	if err := h.documents.Rename(c.Param("id"), req.Title); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "title": req.Title})
}

// DeleteDocument removes a document
// DELETE /api/v1/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.documents.Delete(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

// SaveDocument persists unsaved edits of an open document
// POST /api/v1/documents/:id/save
func (h *DocumentHandler) SaveDocument(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Save(id); err != nil {
		fail(c, err)
		return
	}
	h.snapshot(c, id)
}

// CloseDocument saves a document and drops its editor
// POST /api/v1/documents/:id/close
func (h *DocumentHandler) CloseDocument(c *gin.Context) {
	if err := h.documents.Close(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *DocumentHandler) snapshot(c *gin.Context, id string) {
	od, err := h.documents.Open(id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, od.Snapshot())
}

func (h *DocumentHandler) renderer(c *gin.Context) (*view.Renderer, *service.OpenDocument, bool) {
	od, err := h.documents.Open(c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, nil, false
	}
	return view.NewRenderer(od.ID(), od.Plugin(), h.catalog), od, true
}

// ListThreads returns the thread views of a document
// GET /api/v1/documents/:id/threads
func (h *DocumentHandler) ListThreads(c *gin.Context) {
	r, _, ok := h.renderer(c)
	if !ok {
		return
	}
	dv, err := r.Render()
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, dv)
}

// InsertThread adds a new thread at a position or at the cursor
// POST /api/v1/documents/:id/threads
func (h *DocumentHandler) InsertThread(c *gin.Context) {
	var req insertThreadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}
	}
	r, od, ok := h.renderer(c)
	if !ok {
		return
	}
	threadID, err := od.Plugin().InsertThread(req.At)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.documents.Save(od.ID()); err != nil {
		fail(c, err)
		return
	}
	tv, err := r.RenderThread(threadID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, tv)
}

// Interact applies a UI interaction (submit, stop, dropdown) to a thread
// POST /api/v1/documents/:id/interactions
func (h *DocumentHandler) Interact(c *gin.Context) {
	var in view.Interaction
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	r, od, ok := h.renderer(c)
	if !ok {
		return
	}
	if err := r.Handle(c.Request.Context(), in); err != nil {
		fail(c, err)
		return
	}
	if in.Kind == view.SubmitClick {
		if err := h.documents.Save(od.ID()); err != nil {
			fail(c, err)
			return
		}
	}
	dv, err := r.Render()
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, dv)
}
