package prediction

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/transactions"
	"github.com/mbd888/txsentinel/internal/validation"
)

// Handler provides the submission endpoint
type Handler struct {
	service *Service
}

// NewHandler creates a new prediction handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up prediction routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/predict", h.Predict)
}

// Predict handles POST /predict
func (h *Handler) Predict(c *gin.Context) {
	var in transactions.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     KindValidation,
			"message":   "Invalid request body",
			"stage":     StageReceived,
			"retryable": false,
		})
		return
	}

	res, err := h.service.Predict(c.Request.Context(), &in)
	if err != nil {
		pe, ok := AsError(err)
		if !ok {
			logging.L(c.Request.Context()).Error("prediction failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "internal_error",
				"message":   "Prediction failed",
				"retryable": false,
			})
			return
		}

		body := gin.H{
			"error":     pe.Kind,
			"message":   messageFor(pe),
			"stage":     pe.Stage,
			"retryable": pe.Retryable(),
		}
		if verrs, ok := validationDetails(pe); ok {
			body["details"] = verrs
		}
		c.JSON(pe.HTTPStatus(), body)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func messageFor(pe *Error) string {
	switch pe.Kind {
	case KindValidation:
		return pe.Err.Error()
	case KindModelUnavailable:
		return "No classifier model is loaded"
	case KindStorage:
		return "Transaction could not be stored; it is safe to resubmit"
	default:
		return "Classification failed"
	}
}

func validationDetails(pe *Error) (validation.ValidationErrors, bool) {
	var verrs validation.ValidationErrors
	ok := errors.As(pe.Err, &verrs)
	return verrs, ok
}
