package transactions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/validation"
)

// Handler provides HTTP endpoints for transactions
type Handler struct {
	service *Service
}

// NewHandler creates a new transactions handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up transaction routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.RecordTransaction)
	r.GET("/transactions/stats", h.GetStats)
	r.GET("/transactions/flagged", h.ListFlagged)
	r.GET("/transactions/:id", h.GetTransaction)
	r.PUT("/transactions/:id/review", validation.IDParamMiddleware("id"), h.ReviewTransaction)
	r.GET("/senders/:sender_id/transactions", validation.IDParamMiddleware("sender_id"), h.ListSenderTransactions)
}

// RecordTransaction handles POST /transactions
func (h *Handler) RecordTransaction(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	tx, err := h.service.Record(c.Request.Context(), &in)
	if err != nil {
		var verrs validation.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"details": verrs,
			})
		case errors.Is(err, ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate",
				"message": err.Error(),
			})
		default:
			logging.L(c.Request.Context()).Error("failed to record transaction", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to record transaction",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// GetTransaction handles GET /transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	tx, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get transaction",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ListSenderTransactions handles GET /senders/:sender_id/transactions
func (h *Handler) ListSenderTransactions(c *gin.Context) {
	senderID := c.Param("sender_id")
	txs, err := h.service.ListBySender(c.Request.Context(), senderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sender_id":    senderID,
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetStats handles GET /transactions/stats
func (h *Handler) GetStats(c *gin.Context) {
	st, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute stats",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": st})
}

// ListFlagged handles GET /transactions/flagged
func (h *Handler) ListFlagged(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	txs, err := h.service.ListFlagged(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list flagged transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list flagged transactions",
		})
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// ReviewTransaction handles PUT /transactions/:id/review
func (h *Handler) ReviewTransaction(c *gin.Context) {
	var in ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	tx, err := h.service.Review(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		var verrs validation.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"details": verrs,
			})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
		case errors.Is(err, ErrNotReviewable):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_reviewable",
				"message": "Only classified transactions can be reviewed",
			})
		default:
			logging.L(c.Request.Context()).Error("failed to review transaction", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to review transaction",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}
