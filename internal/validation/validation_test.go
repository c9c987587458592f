package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"S1", true},
		{"sender-42", true},
		{"cust.001@eu", true},
		{"3f2b9c1e-7d1a-4c55-b1f2-0c2d8e1a9f00", true},

		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{"slash/path", false},
		{strings.Repeat("a", MaxIDLength+1), false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsValidID(tc.id), "IsValidID(%q)", tc.id)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hel\x00lo", 10, "hello"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeString(tc.input, tc.maxLen))
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	neg := decimal.NewFromInt(-5)
	errs := Validate(
		Required("sender_id", ""),
		NonNegativeAmount("amount", &neg),
		ValidID("beneficiary_id", "ok-1"),
		Check("sending_date", errors.New("unrecognized date format")),
	)

	require.Len(t, errs, 3)
	assert.Equal(t, "sender_id", errs[0].Field)
	assert.Equal(t, "amount", errs[1].Field)
	assert.Equal(t, "sending_date", errs[2].Field)
	assert.Equal(t, "sender_id: is required", errs.Error())
}

func TestNonNegativeAmount(t *testing.T) {
	zero := decimal.Zero
	assert.Nil(t, NonNegativeAmount("amount", &zero)())

	err := NonNegativeAmount("amount", nil)()
	require.NotNil(t, err)
	assert.Equal(t, "is required", err.Message)
}

func TestValidationErrors_Empty(t *testing.T) {
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
}

func TestIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/senders/:sender_id", IDParamMiddleware("sender_id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/senders/S1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/senders/bad%3Bid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_sender_id")
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(`{"sender_id":"S1"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
