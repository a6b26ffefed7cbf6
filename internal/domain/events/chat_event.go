package events

import (
	"time"

	"github.com/streamchat/backend/internal/domain/chat"
)

// ChatMeta 所有对话事件的公共字段
type ChatMeta struct {
	ConversationID string    `json:"conversation_id"`
	TurnID         string    `json:"turn_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	EventTime      time.Time `json:"timestamp"`
}

// NewChatMeta 创建公共字段
func NewChatMeta(conversationID, messageID string) ChatMeta {
	return ChatMeta{
		ConversationID: conversationID,
		MessageID:      messageID,
		EventTime:      time.Now(),
	}
}

// Timestamp 实现 Event 接口
func (m ChatMeta) Timestamp() time.Time {
	return m.EventTime
}

// Conversation 实现 ConversationEvent 接口
func (m ChatMeta) Conversation() string {
	return m.ConversationID
}

// Turn 实现 ConversationEvent 接口
func (m ChatMeta) Turn() string {
	return m.TurnID
}

// ProcessingEvent 处理中
type ProcessingEvent struct {
	ChatMeta
	Comment string `json:"comment,omitempty"`
}

// Type 实现 Event 接口
func (e *ProcessingEvent) Type() EventType { return ChatProcessing }

// StreamingEvent 内容增量
type StreamingEvent struct {
	ChatMeta
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
}

// Type 实现 Event 接口
func (e *StreamingEvent) Type() EventType { return ChatStreaming }

// SourcesUpdatedEvent 引用来源更新，Sources 为当前完整列表
type SourcesUpdatedEvent struct {
	ChatMeta
	Sources []chat.Citation `json:"sources"`
}

// Type 实现 Event 接口
func (e *SourcesUpdatedEvent) Type() EventType { return ChatSourcesUpdated }

// CompleteEvent 轮次结束
type CompleteEvent struct {
	ChatMeta
	Content      string          `json:"content"`
	Sources      []chat.Citation `json:"sources,omitempty"`
	Usage        *chat.Usage     `json:"usage,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Cancelled    bool            `json:"cancelled,omitempty"`
}

// Type 实现 Event 接口
func (e *CompleteEvent) Type() EventType { return ChatComplete }

// ErrorEvent 轮次失败
type ErrorEvent struct {
	ChatMeta
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind"`
}

// Type 实现 Event 接口
func (e *ErrorEvent) Type() EventType { return ChatError }

// CancelledEvent 用户中止，携带已收到的部分内容
type CancelledEvent struct {
	ChatMeta
	PartialContent string `json:"partial_content"`
}

// Type 实现 Event 接口
func (e *CancelledEvent) Type() EventType { return ChatCancelled }

var (
	_ ConversationEvent = (*ProcessingEvent)(nil)
	_ ConversationEvent = (*StreamingEvent)(nil)
	_ ConversationEvent = (*SourcesUpdatedEvent)(nil)
	_ ConversationEvent = (*CompleteEvent)(nil)
	_ ConversationEvent = (*ErrorEvent)(nil)
	_ ConversationEvent = (*CancelledEvent)(nil)
)
