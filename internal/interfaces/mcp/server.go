package mcp

import (
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appChat "github.com/streamchat/backend/internal/application/chat"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// Version MCP 服务版本
const Version = "0.1.0"

// MCPServer MCP 服务器
type MCPServer struct {
	server  *mcp.Server
	handler http.Handler
	manager *appChat.Manager
	logger  *slog.Logger
}

// NewServer 创建 MCP 服务器并注册对话工具
func NewServer(manager *appChat.Manager) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "streamchat",
			Version: Version,
		},
		nil, // 使用默认能力
	)

	s := &MCPServer{
		server:  server,
		manager: manager,
		logger:  log.NewModuleLogger("mcp", "server"),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "chat_send",
		Description: `Send a message to the chat model and wait for the full reply.
Parameters:
- text (string, required): Message text
- conversation_id (string, optional): Existing conversation ID. A new conversation is created when omitted.

Returns: conversation ID, assistant message ID, reply content, web sources and token usage.`,
	}, s.chatSendTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_history",
		Description: "Read the message history of a conversation. Parameters: conversation_id (string, required). Returns: messages in chronological order with role, content, status and sources.",
	}, s.chatHistoryTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_list",
		Description: "List conversations ordered by last update. No parameters required. Returns: conversation ID, title, message count and timestamps.",
	}, s.chatListTool)

	s.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)
	return s
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
