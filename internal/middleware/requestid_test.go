package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"autopost-engine/pkg/response"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	return router
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) {
		assert.NotEmpty(t, c.GetString(response.RequestIDKey))
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_HonorsCallerSupplied(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, "caller-7", c.GetString(response.RequestIDKey))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "caller-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "caller-7", rec.Header().Get("X-Request-ID"))
}

func TestRequestID_FlowsIntoEnvelope(t *testing.T) {
	router := newRouter()
	router.GET("/ok", func(c *gin.Context) {
		response.Success(c, http.StatusOK, "done", nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "caller-8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `"request_id":"caller-8"`)
}

func TestRecovery_ReturnsEnvelopeOnPanic(t *testing.T) {
	router := newRouter()
	router.Use(Recovery())
	router.GET("/boom", func(c *gin.Context) {
		panic("unexpected")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
