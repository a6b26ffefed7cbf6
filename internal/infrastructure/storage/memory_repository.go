package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamchat/backend/internal/domain/chat"
)

// MemoryRepository 内存仓储，用于测试与无盘运行
type MemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
}

type memoryConversation struct {
	meta     chat.Conversation
	messages []*chat.Message
	turns    []string
}

var _ chat.TurnRepository = (*MemoryRepository)(nil)

// NewMemoryRepository 创建内存仓储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*memoryConversation),
	}
}

// PersistTurn 保存快照
func (r *MemoryRepository) PersistTurn(ctx context.Context, conversationID string, history []*chat.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	c, ok := r.conversations[conversationID]
	if !ok {
		c = &memoryConversation{meta: chat.Conversation{ID: conversationID, CreatedAt: now}}
		r.conversations[conversationID] = c
	}
	if c.meta.Title == "" {
		c.meta.Title = chat.TitleFromHistory(history)
	}
	c.meta.UpdatedAt = now
	c.messages = cloneAll(history)
	c.meta.MessageCount = len(c.messages)

	turnID := uuid.New().String()
	c.turns = append(c.turns, turnID)
	return turnID, nil
}

// LoadHistory 读取历史副本
func (r *MemoryRepository) LoadHistory(_ context.Context, conversationID string) ([]*chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return []*chat.Message{}, nil
	}
	return cloneAll(c.messages), nil
}

// ListConversations 按更新时间倒序
func (r *MemoryRepository) ListConversations(_ context.Context) ([]*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*chat.Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		meta := c.meta
		list = append(list, &meta)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// DeleteConversation 删除会话
func (r *MemoryRepository) DeleteConversation(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, conversationID)
	return nil
}

// TurnCount 已保存的轮次数
func (r *MemoryRepository) TurnCount(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conversations[conversationID]; ok {
		return len(c.turns)
	}
	return 0
}

func cloneAll(in []*chat.Message) []*chat.Message {
	out := make([]*chat.Message, 0, len(in))
	for _, m := range in {
		out = append(out, m.Clone())
	}
	return out
}
