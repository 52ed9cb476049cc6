package respond

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(accept string, h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorNegotiatesFormat(t *testing.T) {
	h := func(c *gin.Context) {
		Error(c, http.StatusNotFound, "not_found", "client not found", nil)
	}

	w := serve("", h)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "client not found", w.Body.String())

	w = serve("text/html,application/xhtml+xml", h)
	assert.Equal(t, "client not found", w.Body.String())

	w = serve("application/json", h)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"code":"not_found","message":"client not found"}}`, w.Body.String())
}

func TestMessage(t *testing.T) {
	h := func(c *gin.Context) {
		Message(c, http.StatusOK, "File uploaded successfully!", gin.H{"message": "File uploaded successfully!"})
	}

	w := serve("", h)
	assert.Equal(t, "File uploaded successfully!", w.Body.String())

	w = serve("application/json", h)
	assert.JSONEq(t, `{"message":"File uploaded successfully!"}`, w.Body.String())
}
