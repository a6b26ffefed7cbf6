package chat

import (
	"context"
	"time"
)

// Conversation 会话摘要
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TurnRepository 对话持久化接口
type TurnRepository interface {
	// PersistTurn 保存一轮结束后的完整历史，返回轮次 ID
	PersistTurn(ctx context.Context, conversationID string, history []*Message) (string, error)

	// LoadHistory 读取会话历史，不存在时返回空切片
	LoadHistory(ctx context.Context, conversationID string) ([]*Message, error)

	// ListConversations 按更新时间倒序列出会话
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// DeleteConversation 删除会话及其消息
	DeleteConversation(ctx context.Context, conversationID string) error
}

// TitleFromHistory 取第一条用户消息作为标题
func TitleFromHistory(history []*Message) string {
	for _, m := range history {
		if m.Role != RoleUser {
			continue
		}
		title := []rune(m.Content)
		if len(title) > 60 {
			return string(title[:60]) + "…"
		}
		return string(title)
	}
	return ""
}
