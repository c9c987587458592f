package features

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/validation"
)

// Handler provides HTTP endpoints for the feature cache
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler creates a new features handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// RegisterRoutes sets up feature routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/features", h.ListFeatures)
	r.POST("/features/backfill", h.Backfill)
	r.GET("/features/:sender_id", validation.IDParamMiddleware("sender_id"), h.GetFeatures)
	r.POST("/features/:sender_id/recompute", validation.IDParamMiddleware("sender_id"), h.Recompute)
}

// ListFeatures handles GET /features?since=
// since accepts an RFC3339 timestamp or a lookback such as 30m, 24h, 7d, 2w.
func (h *Handler) ListFeatures(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := parseSince(raw, h.now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_since",
				"message": "since must be RFC3339 or a lookback like 24h, 7d, 2w",
			})
			return
		}
		since = &t
	}

	snaps, err := h.service.List(c.Request.Context(), since)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list features", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list features",
		})
		return
	}
	if snaps == nil {
		snaps = []*Snapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"features": snaps,
		"count":    len(snaps),
	})
}

// GetFeatures handles GET /features/:sender_id
func (h *Handler) GetFeatures(c *gin.Context) {
	snap, err := h.service.Get(c.Request.Context(), c.Param("sender_id"))
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No features cached for sender",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get features",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}

// Recompute handles POST /features/:sender_id/recompute
func (h *Handler) Recompute(c *gin.Context) {
	snap, err := h.service.Recompute(c.Request.Context(), c.Param("sender_id"))
	if err != nil {
		if errors.Is(err, ErrNoHistory) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no_history",
				"message": "Sender has no transactions",
			})
			return
		}
		logging.L(c.Request.Context()).Error("recompute failed", logging.KeySenderID, c.Param("sender_id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to recompute features",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}

// Backfill handles POST /features/backfill
func (h *Handler) Backfill(c *gin.Context) {
	result, err := h.service.Backfill(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "backfill_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"backfill": result})
}

var lookbackRegex = regexp.MustCompile(`^(\d+)(m|h|d|w)$`)

// maxLookback caps relative since values well below time.Duration overflow.
const maxLookback = 10 * 365 * 24 * time.Hour

func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	matches := lookbackRegex.FindStringSubmatch(s)
	if len(matches) != 3 {
		return time.Time{}, errors.New("invalid since format")
	}
	num, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return time.Time{}, errors.New("lookback out of range")
	}

	var unit time.Duration
	switch matches[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	if num > int64(maxLookback/unit) {
		return time.Time{}, errors.New("lookback out of range")
	}
	return now.Add(-time.Duration(num) * unit), nil
}
