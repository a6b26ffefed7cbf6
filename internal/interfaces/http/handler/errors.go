package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/interfaces/http/response"
)

// errorStatus 领域错误到 HTTP 状态码与业务码的映射
func errorStatus(err error) (status, code int) {
	var turnErr *domainChat.TurnError
	switch {
	case errors.Is(err, domainChat.ErrAlreadyInProgress):
		return http.StatusConflict, response.CodeTurnInProgress
	case errors.Is(err, domainChat.ErrNothingToRegenerate):
		return http.StatusConflict, response.CodeNothingToRegenerate
	case errors.Is(err, domainChat.ErrEmptyMessage):
		return http.StatusBadRequest, response.CodeEmptyMessage
	case errors.Is(err, domainChat.ErrNotEditable):
		return http.StatusBadRequest, response.CodeNotEditable
	case errors.Is(err, domainChat.ErrSessionNotFound):
		return http.StatusNotFound, response.CodeConversationMissing
	case errors.Is(err, domainChat.ErrMessageNotFound):
		return http.StatusNotFound, response.CodeMessageMissing
	case errors.As(err, &turnErr):
		return http.StatusBadGateway, response.CodeUpstream
	default:
		return http.StatusInternalServerError, response.CodeInternal
	}
}

// writeError 输出错误响应
func writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	var turnErr *domainChat.TurnError
	if errors.As(err, &turnErr) {
		response.ErrorWithDetail(c, status, code, turnErr.Message, turnErr.Code)
		return
	}
	if status == http.StatusInternalServerError {
		response.Error(c, status, code, "internal error")
		return
	}
	response.Error(c, status, code, err.Error())
}

// isRejection 请求在开始前被拒绝，未产生任何事件
func isRejection(err error) bool {
	var turnErr *domainChat.TurnError
	return err != nil && !errors.As(err, &turnErr)
}
