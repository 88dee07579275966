package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/threadwriter/pkg/models"
)

// PresetsHandler serves the provider presets used to fill the model dropdown.
type PresetsHandler struct {
	path string
}

// NewPresetsHandler reads presets from path, falling back to the embedded set.
func NewPresetsHandler(path string) *PresetsHandler {
	return &PresetsHandler{path: path}
}

// RegisterRoutes registers preset routes
func (h *PresetsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/models/presets", h.GetPresets)
	r.GET("/models/presets/:provider", h.GetProviderPresets)
}

// GetPresets returns every provider preset
// GET /api/v1/models/presets
func (h *PresetsHandler) GetPresets(c *gin.Context) {
	config, err := models.LoadPresets(h.path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	respond(c, http.StatusOK, config)
}

// GetProviderPresets returns the presets of one provider
// GET /api/v1/models/presets/:provider
func (h *PresetsHandler) GetProviderPresets(c *gin.Context) {
	config, err := models.LoadPresets(h.path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	p, ok := config.Provider(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, models.Response{Code: http.StatusNotFound, Message: "provider not found"})
		return
	}
	respond(c, http.StatusOK, p)
}
