package watcher

import (
	"github.com/google/wire"

	"github.com/streamchat/backend/internal/infrastructure/config"
)

// ProviderSet 配置监听 ProviderSet
var ProviderSet = wire.NewSet(ProvideConfigWatcher)

// ProvideConfigWatcher 监听当前配置文件；未使用配置文件时监听默认路径
func ProvideConfigWatcher(cfg *config.Config) (*ConfigWatcher, error) {
	path := cfg.File
	if path == "" {
		path = config.ConfigFilePath()
	}
	return NewConfigWatcher(path, config.Reload, DefaultDebounceDelay)
}
