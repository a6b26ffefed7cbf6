//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"github.com/streamchat/backend/internal/application"
	appChat "github.com/streamchat/backend/internal/application/chat"
	"github.com/streamchat/backend/internal/infrastructure"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	"github.com/streamchat/backend/internal/interfaces"
)

// InitializeAll 初始化所有服务（HTTP + WebSocket + MCP）
func InitializeAll() (*App, func(), error) {
	wire.Build(
		// 按层组合 ProviderSet
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		// 接口绑定：appChat.Completer -> llm.Client
		wire.Bind(
			new(appChat.Completer),
			new(*llm.Client),
		),
		NewApp, // 组合所有服务的应用结构
	)
	return nil, nil, nil
}
