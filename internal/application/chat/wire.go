package chat

import (
	"github.com/google/wire"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/tokenizer"
)

// ProviderSet 对话应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideManager,
)

// ProvideManager 由配置构造会话管理器
// 估算器始终挂在管理器上，热更新打开 estimate_usage 时可以直接启用
func ProvideManager(
	completer Completer,
	repo domainChat.TurnRepository,
	bus events.EventBus,
	cfg *config.ChatConfig,
	estimator *tokenizer.Estimator,
) *Manager {
	m := NewManager(completer, repo, bus, OptionsFromConfig(cfg, estimator))
	m.tokens = estimator
	return m
}
