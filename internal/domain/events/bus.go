package events

// Handler 事件处理器
// 返回的 error 只记录日志，不影响其他订阅者，也不会重试
type Handler interface {
	HandleEvent(event Event) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(event Event) error

// HandleEvent 实现 Handler 接口
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

// ForConversation 只把指定会话的事件交给 next
func ForConversation(conversationID string, next Handler) Handler {
	return HandlerFunc(func(event Event) error {
		ce, ok := event.(ConversationEvent)
		if !ok || ce.Conversation() != conversationID {
			return nil
		}
		return next.HandleEvent(event)
	})
}

// EventBus 会话生命周期通知的发布订阅
// 同一订阅者按发布顺序收到事件，发布方从不等待订阅者
type EventBus interface {
	// Subscribe 订阅单一类型，返回的取消函数可重复调用
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())

	// SubscribeMultiple 订阅多个类型，跨类型也保持发布顺序
	SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func())

	// Publish 入队后立即返回
	Publish(event Event)

	// Close 停止接收新事件，等待已入队事件处理完成
	Close()
}
