package handler

import (
	"github.com/gin-gonic/gin"

	appChat "github.com/streamchat/backend/internal/application/chat"
	"github.com/streamchat/backend/internal/infrastructure/websocket"
)

// SocketHandler WebSocket 事件推送
type SocketHandler struct {
	manager *appChat.Manager
	hub     *websocket.Hub
}

// NewSocketHandler 创建 WebSocket 处理器
func NewSocketHandler(manager *appChat.Manager, hub *websocket.Hub) *SocketHandler {
	return &SocketHandler{manager: manager, hub: hub}
}

// Conversation 订阅指定会话的事件
// @Summary 会话事件 WebSocket
// @Tags 会话
// @Param id path string true "会话 ID"
// @Success 101
// @Failure 404 {object} response.ErrorResponse
// @Router /ws/conversations/{id} [get]
func (h *SocketHandler) Conversation(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.GetOrRestore(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	// 升级失败时 Upgrader 已写入响应
	_ = h.hub.Serve(c.Writer, c.Request, id)
}
