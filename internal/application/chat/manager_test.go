package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/eventbus"
	"github.com/streamchat/backend/internal/infrastructure/storage"
	"github.com/streamchat/backend/internal/infrastructure/tokenizer"
)

func newTestManager(t *testing.T) (*Manager, *fakeCompleter, *storage.MemoryRepository) {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	fc := &fakeCompleter{}
	repo := storage.NewMemoryRepository()
	return NewManager(fc, repo, bus, Options{Model: "m", Stream: true}), fc, repo
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _, _ := newTestManager(t)

	s, err := m.Create(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())

	got, ok := m.Get(s.ID())
	assert.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestManager_List(t *testing.T) {
	m, fc, _ := newTestManager(t)
	fc.stream(delta("answer") + done)

	first, err := m.Create(context.Background())
	require.NoError(t, err)
	_, err = first.Send(context.Background(), "What is SSE?", domainChat.Attachments{})
	require.NoError(t, err)

	_, err = m.Create(context.Background())
	require.NoError(t, err)

	list, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	var stored *domainChat.Conversation
	for _, c := range list {
		if c.ID == first.ID() {
			stored = c
		}
	}
	require.NotNil(t, stored)
	assert.Equal(t, "What is SSE?", stored.Title)
	assert.Equal(t, 2, stored.MessageCount)
}

func TestManager_GetOrRestore(t *testing.T) {
	m, fc, repo := newTestManager(t)
	fc.stream(delta("first answer") + done).stream(delta("second answer") + done)

	s, err := m.Create(context.Background())
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "q1", domainChat.Attachments{})
	require.NoError(t, err)

	// 模拟重启：新管理器共享同一仓储
	restarted := NewManager(fc, repo, nil, Options{Model: "m", Stream: true})
	restored, err := restarted.GetOrRestore(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Len(t, restored.History(), 2)

	_, err = restored.Send(context.Background(), "q2", domainChat.Attachments{})
	require.NoError(t, err)
	req := fc.request(1)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "first answer", req.Messages[1].Content.Text)

	again, err := restarted.GetOrRestore(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Same(t, restored, again)

	_, err = restarted.GetOrRestore(context.Background(), "missing")
	assert.ErrorIs(t, err, domainChat.ErrSessionNotFound)
}

func TestManager_Delete(t *testing.T) {
	m, fc, repo := newTestManager(t)
	fc.stream(delta("x") + done)

	s, err := m.Create(context.Background())
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "q", domainChat.Attachments{})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), s.ID()))
	_, ok := m.Get(s.ID())
	assert.False(t, ok)

	history, err := repo.LoadHistory(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, m.Delete(context.Background(), s.ID()), domainChat.ErrSessionNotFound)
}

func TestManager_ApplyConfig(t *testing.T) {
	m, fc, _ := newTestManager(t)
	s, err := m.Create(context.Background())
	require.NoError(t, err)

	m.ApplyConfig(&config.ChatConfig{Model: "new-model", SystemPrompt: "sys", Stream: true, MaxTokens: 64})
	assert.Equal(t, "new-model", m.Options().Model)
	assert.Equal(t, "new-model", s.Options().Model)

	fc.stream(done)
	_, err = s.Send(context.Background(), "q", domainChat.Attachments{})
	require.NoError(t, err)
	req := fc.request(0)
	assert.Equal(t, "new-model", req.Model)
	assert.Equal(t, "system", req.Messages[0].Role)

	created, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-model", created.Options().Model)
}

func TestManager_CancelAllIdle(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.CancelAll())
}

func TestProvideManager_EstimateUsageToggle(t *testing.T) {
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	estimator := tokenizer.NewEstimator()

	m := ProvideManager(&fakeCompleter{}, storage.NewMemoryRepository(), bus, &config.ChatConfig{Model: "m"}, estimator)
	assert.Nil(t, m.Options().Tokens)

	m.ApplyConfig(&config.ChatConfig{Model: "m", EstimateUsage: true})
	assert.NotNil(t, m.Options().Tokens)

	m.ApplyConfig(&config.ChatConfig{Model: "m"})
	assert.Nil(t, m.Options().Tokens)
}
