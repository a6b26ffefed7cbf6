package infrastructure

import (
	"github.com/google/wire"

	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/discovery"
	"github.com/streamchat/backend/internal/infrastructure/eventbus"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	"github.com/streamchat/backend/internal/infrastructure/storage"
	"github.com/streamchat/backend/internal/infrastructure/tokenizer"
	"github.com/streamchat/backend/internal/infrastructure/watcher"
	"github.com/streamchat/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	llm.ProviderSet,
	websocket.ProviderSet,
	tokenizer.ProviderSet,
	eventbus.ProviderSet,
	watcher.ProviderSet,
	discovery.ProviderSet,
)
