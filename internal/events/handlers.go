package events

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes the notification log.
type Handler struct {
	store NotificationStore
}

// NewHandler creates a new notifications handler
func NewHandler(store NotificationStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up notification routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.ListNotifications)
}

// ListNotifications handles GET /notifications?limit=
func (h *Handler) ListNotifications(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	items, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list notifications",
		})
		return
	}
	if items == nil {
		items = []*Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"count":         len(items),
	})
}
