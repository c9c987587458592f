package inference

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelRouter(e *Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(e).RegisterRoutes(r.Group("/v1"))
	return r
}

func TestGetModel(t *testing.T) {
	e, err := Load("testdata/model.json")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	modelRouter(e).ServeHTTP(w, httptest.NewRequest("GET", "/v1/model", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"feature_names"`)
	assert.Contains(t, w.Body.String(), `"trees":2`)
}

func TestGetModel_Unavailable(t *testing.T) {
	w := httptest.NewRecorder()
	modelRouter(NewEngine(nil)).ServeHTTP(w, httptest.NewRequest("GET", "/v1/model", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "model_unavailable")
}
