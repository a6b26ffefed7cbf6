package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appChat "github.com/streamchat/backend/internal/application/chat"
	domainChat "github.com/streamchat/backend/internal/domain/chat"
)

// ChatSendInput chat_send 工具输入
type ChatSendInput struct {
	Text           string `json:"text" jsonschema:"Message text"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Existing conversation ID (optional)"`
}

// SourceOutput 引用来源
type SourceOutput struct {
	URL   string `json:"url" jsonschema:"Source URL"`
	Title string `json:"title,omitempty" jsonschema:"Source title"`
}

// ChatSendOutput chat_send 工具输出
type ChatSendOutput struct {
	ConversationID string         `json:"conversation_id" jsonschema:"Conversation ID"`
	MessageID      string         `json:"message_id" jsonschema:"Assistant message ID"`
	Content        string         `json:"content" jsonschema:"Reply content"`
	Status         string         `json:"status" jsonschema:"Message status: complete/cancelled"`
	Sources        []SourceOutput `json:"sources,omitempty" jsonschema:"Web sources cited by the reply"`
	TotalTokens    int            `json:"total_tokens,omitempty" jsonschema:"Total tokens used by the turn"`
}

// ChatHistoryInput chat_history 工具输入
type ChatHistoryInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"Conversation ID"`
}

// MessageOutput 历史中的一条消息
type MessageOutput struct {
	ID        string         `json:"id" jsonschema:"Message ID"`
	Role      string         `json:"role" jsonschema:"user/assistant"`
	Content   string         `json:"content" jsonschema:"Message content"`
	Status    string         `json:"status" jsonschema:"Message status"`
	Timestamp string         `json:"timestamp" jsonschema:"RFC3339 timestamp"`
	Sources   []SourceOutput `json:"sources,omitempty" jsonschema:"Web sources"`
}

// ChatHistoryOutput chat_history 工具输出
type ChatHistoryOutput struct {
	ConversationID string          `json:"conversation_id" jsonschema:"Conversation ID"`
	Messages       []MessageOutput `json:"messages" jsonschema:"Messages in chronological order"`
}

// ChatListInput chat_list 工具输入（空输入）
type ChatListInput struct{}

// ConversationOutput 会话摘要
type ConversationOutput struct {
	ID           string `json:"id" jsonschema:"Conversation ID"`
	Title        string `json:"title" jsonschema:"Title taken from the first user message"`
	MessageCount int    `json:"message_count" jsonschema:"Number of messages"`
	UpdatedAt    string `json:"updated_at" jsonschema:"RFC3339 timestamp of last update"`
}

// ChatListOutput chat_list 工具输出
type ChatListOutput struct {
	Conversations []ConversationOutput `json:"conversations" jsonschema:"Conversations ordered by last update"`
}

func (s *MCPServer) chatSendTool(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChatSendInput,
) (*mcp.CallToolResult, ChatSendOutput, error) {
	var (
		session *appChat.Session
		err     error
	)
	if input.ConversationID == "" {
		session, err = s.manager.Create(ctx)
	} else {
		session, err = s.manager.GetOrRestore(ctx, input.ConversationID)
	}
	if err != nil {
		return nil, ChatSendOutput{}, fmt.Errorf("failed to open conversation: %w", err)
	}

	msg, err := session.Send(ctx, input.Text, domainChat.Attachments{})
	if err != nil {
		var turnErr *domainChat.TurnError
		if errors.As(err, &turnErr) {
			s.logger.Warn("chat_send failed", "conversation_id", session.ID(), "code", turnErr.Code, "error", turnErr.Message)
		}
		return nil, ChatSendOutput{}, err
	}

	out := ChatSendOutput{
		ConversationID: session.ID(),
		MessageID:      msg.ID,
		Content:        msg.Content,
		Status:         string(msg.Status),
		Sources:        sourcesOutput(msg.Sources),
	}
	if msg.Usage != nil {
		out.TotalTokens = msg.Usage.TotalTokens
	}
	return nil, out, nil
}

func (s *MCPServer) chatHistoryTool(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChatHistoryInput,
) (*mcp.CallToolResult, ChatHistoryOutput, error) {
	if input.ConversationID == "" {
		return nil, ChatHistoryOutput{}, errors.New("conversation_id is required")
	}
	session, err := s.manager.GetOrRestore(ctx, input.ConversationID)
	if err != nil {
		return nil, ChatHistoryOutput{}, err
	}

	history := session.History()
	out := ChatHistoryOutput{
		ConversationID: session.ID(),
		Messages:       make([]MessageOutput, 0, len(history)),
	}
	for _, m := range history {
		out.Messages = append(out.Messages, MessageOutput{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Status:    string(m.Status),
			Timestamp: m.Timestamp.Format(time.RFC3339),
			Sources:   sourcesOutput(m.Sources),
		})
	}
	return nil, out, nil
}

func (s *MCPServer) chatListTool(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ChatListInput,
) (*mcp.CallToolResult, ChatListOutput, error) {
	list, err := s.manager.List(ctx)
	if err != nil {
		return nil, ChatListOutput{}, err
	}
	out := ChatListOutput{Conversations: make([]ConversationOutput, 0, len(list))}
	for _, c := range list {
		out.Conversations = append(out.Conversations, ConversationOutput{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: c.MessageCount,
			UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func sourcesOutput(sources []domainChat.Citation) []SourceOutput {
	if len(sources) == 0 {
		return nil
	}
	out := make([]SourceOutput, 0, len(sources))
	for _, c := range sources {
		out = append(out, SourceOutput{URL: c.URL, Title: c.Title})
	}
	return out
}
