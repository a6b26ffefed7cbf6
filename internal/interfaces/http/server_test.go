package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appChat "github.com/streamchat/backend/internal/application/chat"
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/eventbus"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	"github.com/streamchat/backend/internal/infrastructure/storage"
	"github.com/streamchat/backend/internal/infrastructure/websocket"
	"github.com/streamchat/backend/internal/interfaces/http/handler"
	"github.com/streamchat/backend/internal/interfaces/http/middleware"
	"github.com/streamchat/backend/internal/interfaces/mcp"
)

type doneCompleter struct{}

func (doneCompleter) OpenStream(context.Context, *llm.ChatCompletionRequest) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("data: [DONE]\n\n")), nil
}

func (doneCompleter) CreateChatCompletion(context.Context, *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return &llm.ChatCompletionResponse{}, nil
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	manager := appChat.NewManager(doneCompleter{}, storage.NewMemoryRepository(), bus, appChat.Options{Model: "m", Stream: true})
	hub := websocket.NewHub(1024, 1024)
	hub.Start()
	t.Cleanup(hub.Stop)

	return NewServer(
		&config.ServerConfig{HTTPPort: ":0"},
		handler.NewConversationHandler(manager, bus),
		handler.NewSocketHandler(manager, hub),
		mcp.NewServer(manager),
	)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "streamchat", body["service"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestServer_RoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/conversations/missing/messages", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/conversations")
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := newTestServer(t)
	assert.NoError(t, s.Stop())
}
