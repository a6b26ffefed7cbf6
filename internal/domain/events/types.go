// Package events 定义领域事件类型和接口
// 用于对话会话向外部（HTTP SSE、WebSocket、MCP）推送生命周期通知
package events

import "time"

// EventType 事件类型标识
type EventType string

// 对话轮次相关事件类型
const (
	// ChatProcessing 请求已发出，或收到厂商的处理心跳
	ChatProcessing EventType = "chat.processing"
	// ChatStreaming 收到内容增量
	ChatStreaming EventType = "chat.streaming"
	// ChatSourcesUpdated 引用来源列表增长
	ChatSourcesUpdated EventType = "chat.sources_updated"
	// ChatComplete 轮次结束（包括取消）
	ChatComplete EventType = "chat.complete"
	// ChatError 轮次失败
	ChatError EventType = "chat.error"
	// ChatCancelled 用户中止
	ChatCancelled EventType = "chat.cancelled"
)

// AllChatEvents 全部对话事件类型，按生命周期顺序
var AllChatEvents = []EventType{
	ChatProcessing,
	ChatStreaming,
	ChatSourcesUpdated,
	ChatComplete,
	ChatError,
	ChatCancelled,
}

// IsTerminal 是否为一轮对话的最后一个事件
func (t EventType) IsTerminal() bool {
	return t == ChatComplete || t == ChatError
}

// ShortName 去掉 "chat." 前缀，用于 SSE 的 event 字段
func (t EventType) ShortName() string {
	const prefix = "chat."
	s := string(t)
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}

// ConversationEvent 归属于某个会话的事件
type ConversationEvent interface {
	Event
	// Conversation 返回会话 ID
	Conversation() string
	// Turn 返回产生该事件的轮次 ID
	Turn() string
}
