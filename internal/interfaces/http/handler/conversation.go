package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	appChat "github.com/streamchat/backend/internal/application/chat"
	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/log"
	"github.com/streamchat/backend/internal/interfaces/http/response"
)

// ConversationHandler 会话处理器
type ConversationHandler struct {
	manager *appChat.Manager
	bus     events.EventBus
	logger  *slog.Logger
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(manager *appChat.Manager, bus events.EventBus) *ConversationHandler {
	return &ConversationHandler{
		manager: manager,
		bus:     bus,
		logger:  log.NewModuleLogger("http", "conversation_handler"),
	}
}

// Create 新建会话
// @Summary 新建会话
// @Tags 会话
// @Produce json
// @Success 200 {object} response.Response{data=ConversationDTO}
// @Router /conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	s, err := h.manager.Create(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, ConversationDTO{ID: s.ID()})
}

// List 会话列表
// @Summary 会话列表
// @Tags 会话
// @Produce json
// @Success 200 {object} response.Response{data=[]domainChat.Conversation}
// @Failure 500 {object} response.ErrorResponse
// @Router /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.manager.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list conversations", "error", err)
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// History 会话历史
// @Summary 会话历史
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response{data=HistoryDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ConversationHandler) History(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, HistoryDTO{
		ID:        s.ID(),
		IsLoading: s.IsLoading(),
		Messages:  s.History(),
	})
}

// Send 发送消息
// @Summary 发送消息
// @Description stream 为 true 或 Accept 为 text/event-stream 时以 SSE 推送 processing/streaming/sources_updated/complete/error/cancelled 事件
// @Tags 会话
// @Accept json
// @Produce json,text/event-stream
// @Param id path string true "会话 ID"
// @Param body body SendMessageRequest true "消息内容"
// @Success 200 {object} response.Response{data=domainChat.Message}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ConversationHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	attachments := req.Attachments()
	h.runTurn(c, s, req.Stream, func(ctx context.Context) (*domainChat.Message, error) {
		return s.Send(ctx, req.Text, attachments)
	})
}

// Regenerate 重新生成最后一条回复
// @Summary 重新生成
// @Tags 会话
// @Accept json
// @Produce json,text/event-stream
// @Param id path string true "会话 ID"
// @Param body body RegenerateRequest false "选项"
// @Success 200 {object} response.Response{data=domainChat.Message}
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /conversations/{id}/regenerate [post]
func (h *ConversationHandler) Regenerate(c *gin.Context) {
	var req RegenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", err.Error())
			return
		}
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.runTurn(c, s, req.Stream, s.Regenerate)
}

// Edit 编辑用户消息并重发
// @Summary 编辑并重发
// @Tags 会话
// @Accept json
// @Produce json,text/event-stream
// @Param id path string true "会话 ID"
// @Param messageId path string true "用户消息 ID"
// @Param body body EditMessageRequest true "新内容"
// @Success 200 {object} response.Response{data=domainChat.Message}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /conversations/{id}/messages/{messageId} [put]
func (h *ConversationHandler) Edit(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	messageID := c.Param("messageId")
	h.runTurn(c, s, req.Stream, func(ctx context.Context) (*domainChat.Message, error) {
		return s.EditAndResend(ctx, messageID, req.Text)
	})
}

// Cancel 中止进行中的请求
// @Summary 中止请求
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response{data=CancelDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /conversations/{id}/cancel [post]
func (h *ConversationHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, CancelDTO{Cancelled: s.Cancel()})
}

// Delete 删除会话
// @Summary 删除会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// session 查找会话，不存在时写入 404
func (h *ConversationHandler) session(c *gin.Context) (*appChat.Session, bool) {
	s, err := h.manager.GetOrRestore(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

// runTurn 按请求选择 SSE 转发或等待结果
func (h *ConversationHandler) runTurn(c *gin.Context, s *appChat.Session, stream *bool, run turnFunc) {
	if wantsStream(c, stream) {
		h.relay(c, s.ID(), run)
		return
	}
	msg, err := run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, msg)
}
