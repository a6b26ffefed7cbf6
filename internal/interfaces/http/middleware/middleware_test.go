package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/streamchat/backend/internal/infrastructure/log"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func echoRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), EnsureUTF8Body())
	r.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.Header("X-Seen-Request-ID", log.RequestIDFromContext(c.Request.Context()))
		c.String(http.StatusOK, string(body))
	})
	return r
}

func TestEnsureUTF8Body_ConvertsGBK(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("你好"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	echoRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(gbk)))
	assert.Equal(t, "你好", w.Body.String())
}

func TestEnsureUTF8Body_KeepsUTF8(t *testing.T) {
	w := httptest.NewRecorder()
	echoRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader([]byte(`{"text":"héllo"}`))))
	assert.Equal(t, `{"text":"héllo"}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		echoRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Header().Get("X-Seen-Request-ID"))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		echoRouter().ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-42", w.Header().Get("X-Seen-Request-ID"))
	})
}
