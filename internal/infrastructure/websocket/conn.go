package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Serve 升级 HTTP 连接，推送指定会话的事件直到连接断开
// 客户端只接收，发来的消息被丢弃
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, conversationID string) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  h.readBufferSize,
		WriteBufferSize: h.writeBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true // 本地服务允许所有来源
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return err
	}

	c := NewClient(conversationID)
	h.Register(c)
	h.logger.Debug("Client connected", "conversation_id", conversationID)

	go h.writePump(conn, c)
	go h.readPump(conn, c)
	return nil
}

// readPump 只处理控制帧，读失败时注销连接
func (h *Hub) readPump(conn *websocket.Conn, c *Client) {
	defer func() {
		h.Unregister(c)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Connection read error",
					"conversation_id", c.ConversationID,
					"error", err,
				)
			}
			return
		}
	}
}

// writePump 发送事件与心跳，Send 关闭时发送 close 帧
func (h *Hub) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("Failed to write message",
					"conversation_id", c.ConversationID,
					"error", err,
				)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
