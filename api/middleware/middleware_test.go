package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-converter/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDAssignsAndPropagates(t *testing.T) {
	log := logger.NewTestLogger()
	r := gin.New()
	r.Use(RequestID(), Logger(log))

	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	entries := log.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Request handled", entries[1].Message)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/api/convert", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/convert", nil)
	req.Header.Set("Origin", "http://frontend.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
