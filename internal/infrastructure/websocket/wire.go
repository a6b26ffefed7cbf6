package websocket

import (
	"github.com/google/wire"

	"github.com/streamchat/backend/internal/infrastructure/config"
)

// ProviderSet WebSocket ProviderSet
var ProviderSet = wire.NewSet(ProvideHub)

// ProvideHub 按配置的缓冲区大小创建 Hub
func ProvideHub(cfg *config.Config) *Hub {
	return NewHub(cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize)
}
