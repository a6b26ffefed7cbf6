package mcp

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appChat "github.com/streamchat/backend/internal/application/chat"
	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	"github.com/streamchat/backend/internal/infrastructure/storage"
)

type staticCompleter struct{ body string }

func (s staticCompleter) OpenStream(context.Context, *llm.ChatCompletionRequest) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func (s staticCompleter) CreateChatCompletion(context.Context, *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return nil, io.ErrUnexpectedEOF
}

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	body := `data: {"choices":[{"delta":{"content":"See docs","annotations":[{"type":"url_citation","url_citation":{"url":"https://go.dev","title":"Go"}}]}}]}` + "\n\n" +
		`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}` + "\n\n" +
		"data: [DONE]\n\n"
	manager := appChat.NewManager(staticCompleter{body: body}, storage.NewMemoryRepository(), nil, appChat.Options{Model: "m", Stream: true})
	return NewServer(manager)
}

func TestChatTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, sent, err := s.chatSendTool(ctx, nil, ChatSendInput{Text: "Where are the docs?"})
	require.NoError(t, err)
	require.NotEmpty(t, sent.ConversationID)
	assert.Equal(t, "See docs", sent.Content)
	assert.Equal(t, string(domainChat.StatusComplete), sent.Status)
	assert.Equal(t, []SourceOutput{{URL: "https://go.dev", Title: "Go"}}, sent.Sources)
	assert.Equal(t, 5, sent.TotalTokens)

	_, hist, err := s.chatHistoryTool(ctx, nil, ChatHistoryInput{ConversationID: sent.ConversationID})
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "user", hist.Messages[0].Role)
	assert.Equal(t, sent.MessageID, hist.Messages[1].ID)

	_, list, err := s.chatListTool(ctx, nil, ChatListInput{})
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "Where are the docs?", list.Conversations[0].Title)
}

func TestChatTools_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.chatHistoryTool(ctx, nil, ChatHistoryInput{})
	assert.Error(t, err)

	_, _, err = s.chatHistoryTool(ctx, nil, ChatHistoryInput{ConversationID: "missing"})
	assert.ErrorIs(t, err, domainChat.ErrSessionNotFound)

	_, _, err = s.chatSendTool(ctx, nil, ChatSendInput{Text: "  "})
	assert.ErrorIs(t, err, domainChat.ErrEmptyMessage)

	assert.NotNil(t, s.GetHandler())
}
