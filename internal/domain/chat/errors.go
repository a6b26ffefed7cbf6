package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInProgress 已有一轮对话在进行中
	ErrAlreadyInProgress = errors.New("a turn is already in progress")
	// ErrEmptyMessage 既无文本也无附件
	ErrEmptyMessage = errors.New("message has no text and no attachments")
	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrNothingToRegenerate 没有可重新生成的助手消息
	ErrNothingToRegenerate = errors.New("no assistant message to regenerate")
	// ErrNotEditable 只能编辑用户消息
	ErrNotEditable = errors.New("only user messages can be edited")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
)

// TurnErrorKind 轮次失败类型
type TurnErrorKind string

const (
	// TransportError 网络失败或流开始前的非 2xx 响应
	TransportError TurnErrorKind = "transport_error"
	// MidStreamError 流中厂商返回 error 字段或 error finish_reason
	MidStreamError TurnErrorKind = "mid_stream_error"
)

// TurnError 一轮对话的失败详情
type TurnError struct {
	Kind    TurnErrorKind
	Code    string
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *TurnError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *TurnError) Unwrap() error {
	return e.Err
}

// IsTurnError 判断是否为指定类型的轮次失败
func IsTurnError(err error, kind TurnErrorKind) bool {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
