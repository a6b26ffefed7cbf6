package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// Manager 按会话 ID 管理会话
type Manager struct {
	completer Completer
	repo      domainChat.TurnRepository
	bus       events.EventBus
	tokens    TokenCounter
	logger    *slog.Logger

	mu       sync.RWMutex
	opts     Options
	sessions map[string]*Session
	created  map[string]time.Time
}

// NewManager 创建会话管理器
func NewManager(completer Completer, repo domainChat.TurnRepository, bus events.EventBus, opts Options) *Manager {
	return &Manager{
		completer: completer,
		repo:      repo,
		bus:       bus,
		tokens:    opts.Tokens,
		opts:      opts,
		sessions:  make(map[string]*Session),
		created:   make(map[string]time.Time),
		logger:    log.NewModuleLogger("chat", "manager"),
	}
}

// Create 新建空会话，首轮结束前只存在于内存
func (m *Manager) Create(_ context.Context) (*Session, error) {
	id := uuid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	s := NewSession(id, m.completer, m.repo, m.bus, m.opts)
	m.sessions[id] = s
	m.created[id] = time.Now()

	m.logger.Info("Conversation created", "conversation_id", id)
	return s, nil
}

// Get 只查内存
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrRestore 内存中没有时从仓储恢复历史
func (m *Manager) GetOrRestore(ctx context.Context, id string) (*Session, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}
	if m.repo == nil {
		return nil, domainChat.ErrSessionNotFound
	}

	history, err := m.repo.LoadHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) == 0 {
		return nil, domainChat.ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// 并发恢复时以先注册的为准
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := RestoreSession(id, m.completer, m.repo, m.bus, m.opts, history)
	m.sessions[id] = s
	m.logger.Info("Conversation restored",
		"conversation_id", id,
		"messages", len(history),
	)
	return s, nil
}

// List 合并已持久化与仅在内存中的会话，按更新时间倒序
func (m *Manager) List(ctx context.Context) ([]*domainChat.Conversation, error) {
	var list []*domainChat.Conversation
	if m.repo != nil {
		stored, err := m.repo.ListConversations(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		list = stored
	}

	known := make(map[string]struct{}, len(list))
	for _, c := range list {
		known[c.ID] = struct{}{}
	}

	m.mu.RLock()
	for id, s := range m.sessions {
		if _, ok := known[id]; ok {
			continue
		}
		history := s.History()
		list = append(list, &domainChat.Conversation{
			ID:           id,
			Title:        domainChat.TitleFromHistory(history),
			MessageCount: len(history),
			CreatedAt:    m.created[id],
			UpdatedAt:    m.created[id],
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	if list == nil {
		list = []*domainChat.Conversation{}
	}
	return list, nil
}

// Delete 中止进行中的请求并删除会话
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, inMemory := m.sessions[id]
	delete(m.sessions, id)
	delete(m.created, id)
	m.mu.Unlock()

	if inMemory {
		s.Cancel()
	}
	if m.repo == nil {
		if !inMemory {
			return domainChat.ErrSessionNotFound
		}
		return nil
	}

	if !inMemory {
		history, err := m.repo.LoadHistory(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		if len(history) == 0 {
			return domainChat.ErrSessionNotFound
		}
	}
	if err := m.repo.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	m.logger.Info("Conversation deleted", "conversation_id", id)
	return nil
}

// ApplyConfig 热更新默认参数，并同步到所有会话
func (m *Manager) ApplyConfig(cfg *config.ChatConfig) {
	next := OptionsFromConfig(cfg, m.tokens)

	m.mu.Lock()
	m.opts = next
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.UpdateOptions(func(o *Options) { *o = next })
	}
	m.logger.Info("Chat config applied",
		"model", next.Model,
		"stream", next.Stream,
		"web_search", next.WebSearch,
		"sessions", len(sessions),
	)
}

// Options 当前默认参数
func (m *Manager) Options() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts
}

// CancelAll 中止所有进行中的请求，返回中止数量
func (m *Manager) CancelAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.Cancel() {
			n++
		}
	}
	return n
}
