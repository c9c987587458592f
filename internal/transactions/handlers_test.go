package transactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *Service, *[]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var hooked []string
	svc := NewService(NewMemoryStore()).WithRecordHook(func(_ context.Context, senderID string) {
		hooked = append(hooked, senderID)
	})
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r, svc, &hooked
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestRecordTransaction(t *testing.T) {
	r, _, hooked := setupRouter(t)

	w := post(r, "/v1/transactions", `{
		"sender_id": "S1",
		"beneficiary_id": "B1",
		"amount": 250.5,
		"currency": "GBP",
		"sending_date": "2024-02-01 10:00:00",
		"status": "Paid"
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Transaction Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusPaid, body.Transaction.Status)
	assert.Equal(t, "250.5", body.Transaction.Amount.String())
	assert.Equal(t, 2024, body.Transaction.SendingDate.Year())
	assert.NotEmpty(t, body.Transaction.ID)
	assert.Equal(t, []string{"S1"}, *hooked)

	w = get(r, "/v1/transactions/"+body.Transaction.ID)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordTransaction_Validation(t *testing.T) {
	r, _, hooked := setupRouter(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing status", `{"sender_id":"S1","amount":1}`, "status"},
		{"pending status", `{"sender_id":"S1","amount":1,"status":"Pending"}`, "status"},
		{"missing sender", `{"amount":1,"status":"Paid"}`, "sender_id"},
		{"missing amount", `{"sender_id":"S1","status":"Paid"}`, "amount"},
		{"negative amount", `{"sender_id":"S1","amount":-1,"status":"Paid"}`, "amount"},
		{"bad date", `{"sender_id":"S1","amount":1,"status":"Paid","sending_date":"someday"}`, "sending_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(r, "/v1/transactions", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"field":"`+tt.field+`"`)
		})
	}
	assert.Empty(t, *hooked)

	w := post(r, "/v1/transactions", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestGetTransaction_NotFound(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := get(r, "/v1/transactions/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestListSenderTransactions(t *testing.T) {
	r, _, _ := setupRouter(t)

	post(r, "/v1/transactions", `{"sender_id":"S1","amount":1,"status":"Paid","sending_date":"2024-01-02"}`)
	post(r, "/v1/transactions", `{"sender_id":"S1","amount":2,"status":"Paid","sending_date":"2024-01-01"}`)

	w := get(r, "/v1/senders/S1/transactions")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count        int           `json:"count"`
		Transactions []Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "2", body.Transactions[0].Amount.String())

	w = get(r, "/v1/senders/unknown/transactions")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transactions":[]`)
}

func TestGetStats(t *testing.T) {
	r, _, _ := setupRouter(t)
	post(r, "/v1/transactions", `{"sender_id":"S1","amount":10,"status":"Paid"}`)
	post(r, "/v1/transactions", `{"sender_id":"S2","amount":5,"status":"Predicted: Suspicious"}`)

	w := get(r, "/v1/transactions/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Stats Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Stats.TotalTransactions)
	assert.Equal(t, 1, body.Stats.SuspiciousCount)
	assert.Equal(t, 2, body.Stats.DistinctSenders)
	assert.Equal(t, "15", body.Stats.TotalVolume.String())
}

func put(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func classify(t *testing.T, svc *Service, id, sender, label string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.Store().Create(ctx, newTx(id, sender, 9000, day0, StatusPending)))
	_, err := svc.Store().Finalize(ctx, id, Outcome{Label: label, Confidence: 0.7})
	require.NoError(t, err)
}

func TestFlaggedQueueAndReview(t *testing.T) {
	r, svc, _ := setupRouter(t)
	classify(t, svc, "sus-1", "S1", "Suspicious")
	classify(t, svc, "gen-1", "S2", "Genuine")

	w := get(r, "/v1/transactions/flagged")
	require.Equal(t, http.StatusOK, w.Code)
	var queue struct {
		Count        int           `json:"count"`
		Transactions []Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queue))
	require.Equal(t, 1, queue.Count)
	assert.Equal(t, "sus-1", queue.Transactions[0].ID)
	assert.True(t, queue.Transactions[0].Flagged)

	w = put(r, "/v1/transactions/sus-1/review", `{"reviewed_by":"  analyst-7 "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Transaction Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ReviewApproved, body.Transaction.ReviewStatus)
	assert.Equal(t, "analyst-7", body.Transaction.ReviewedBy)
	assert.NotNil(t, body.Transaction.ReviewedAt)
	assert.False(t, body.Transaction.Flagged)
	assert.Equal(t, StatusPredictedSuspicious, body.Transaction.Status)

	w = get(r, "/v1/transactions/flagged")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transactions":[]`)
}

func TestReviewTransaction_Errors(t *testing.T) {
	r, svc, _ := setupRouter(t)
	classify(t, svc, "sus-1", "S1", "Suspicious")

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown verdict", "/v1/transactions/sus-1/review", `{"review_status":"maybe"}`, http.StatusBadRequest, "validation_failed"},
		{"bad body", "/v1/transactions/sus-1/review", `nope`, http.StatusBadRequest, "invalid_request"},
		{"missing", "/v1/transactions/ghost/review", `{}`, http.StatusNotFound, "not_found"},
		{"bad id", "/v1/transactions/bad%20id/review", `{}`, http.StatusBadRequest, "invalid_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := put(r, tt.path, tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.wantErr)
		})
	}

	w := get(r, "/v1/transactions/flagged?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_limit")
}

func TestReviewTransaction_HistoricalRecordNotReviewable(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := post(r, "/v1/transactions", `{"sender_id":"S1","amount":1,"status":"Paid"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Transaction Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	w = put(r, "/v1/transactions/"+body.Transaction.ID+"/review", `{"review_status":"approved"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_reviewable")
}
