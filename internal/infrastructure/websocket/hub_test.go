package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/eventbus"
)

func TestHub_BroadcastByConversation(t *testing.T) {
	h := NewHub(1024, 1024)
	h.Start()
	defer h.Stop()

	a := NewClient("conv-a")
	b := NewClient("conv-b")
	h.Register(a)
	h.Register(b)

	require.NoError(t, h.Broadcast("conv-a", map[string]string{"hello": "a"}))

	select {
	case msg := <-a.Send:
		assert.JSONEq(t, `{"hello":"a"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("conv-a did not receive broadcast")
	}
	select {
	case <-b.Send:
		t.Fatal("conv-b must not receive conv-a broadcast")
	default:
	}
	assert.Equal(t, 1, h.ClientCount("conv-a"))

	h.Unregister(a)
	_, ok := <-a.Send
	assert.False(t, ok, "注销后发送通道关闭")
	assert.Equal(t, 0, h.ClientCount("conv-a"))
}

func TestHub_StopClosesClients(t *testing.T) {
	h := NewHub(1024, 1024)
	h.Start()
	c := NewClient("conv")
	h.Register(c)
	h.Stop()

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.NoError(t, h.Broadcast("conv", "ignored"))
}

func TestHub_ServeRelaysBusEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	h := NewHub(1024, 1024)
	h.Start()
	defer h.Stop()
	defer h.Attach(bus)()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, "conv-1")
	}))
	defer srv.Close()

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount("conv-1") == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(&events.StreamingEvent{ChatMeta: events.NewChatMeta("other", "m0"), Delta: "x", Accumulated: "x"})
	bus.Publish(&events.StreamingEvent{ChatMeta: events.NewChatMeta("conv-1", "m1"), Delta: "Hi", Accumulated: "Hi"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type string `json:"type"`
		Data struct {
			ConversationID string `json:"conversation_id"`
			MessageID      string `json:"message_id"`
			Accumulated    string `json:"accumulated"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "streaming", got.Type)
	assert.Equal(t, "conv-1", got.Data.ConversationID)
	assert.Equal(t, "m1", got.Data.MessageID)
	assert.Equal(t, "Hi", got.Data.Accumulated)
}
