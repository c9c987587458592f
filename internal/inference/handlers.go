package inference

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes model metadata.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new model handler
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up model routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/model", h.GetModel)
}

// GetModel handles GET /model
func (h *Handler) GetModel(c *gin.Context) {
	info, err := h.engine.Info()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "model_unavailable",
			"message": "No classifier model is loaded",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": info})
}
