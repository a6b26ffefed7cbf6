package llm

import (
	"github.com/google/wire"

	"github.com/streamchat/backend/internal/infrastructure/config"
)

// ProviderSet LLM 客户端 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideClientConfig,
	NewClient,
)

// ProvideClientConfig 由全局配置构造客户端配置
func ProvideClientConfig(cfg *config.Config) ClientConfig {
	return ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
		Timeout: cfg.LLM.Timeout,
	}
}
