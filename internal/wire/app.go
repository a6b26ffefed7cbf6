package wire

import (
	"log/slog"

	appChat "github.com/streamchat/backend/internal/application/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/discovery"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	applog "github.com/streamchat/backend/internal/infrastructure/log"
	"github.com/streamchat/backend/internal/infrastructure/watcher"
	"github.com/streamchat/backend/internal/infrastructure/websocket"
	"github.com/streamchat/backend/internal/interfaces/http"
)

// Version 服务版本，用于 mDNS TXT 记录
const Version = "0.1.0"

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *http.HTTPServer
	cfg        *config.Config
	wsHub      *websocket.Hub
	eventBus   events.EventBus
	manager    *appChat.Manager
	llmClient  *llm.Client
	logger     *slog.Logger

	configWatcher *watcher.ConfigWatcher
	advertiser    *discovery.Advertiser
	detachHub     func()
}

// NewApp 创建应用实例
func NewApp(
	cfg *config.Config,
	httpServer *http.HTTPServer,
	wsHub *websocket.Hub,
	eventBus events.EventBus,
	manager *appChat.Manager,
	llmClient *llm.Client,
	configWatcher *watcher.ConfigWatcher,
	advertiser *discovery.Advertiser,
) *App {
	return &App{
		HTTPServer:    httpServer,
		cfg:           cfg,
		wsHub:         wsHub,
		eventBus:      eventBus,
		manager:       manager,
		llmClient:     llmClient,
		configWatcher: configWatcher,
		advertiser:    advertiser,
		logger:        applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting streamchat backend application",
		"version", Version,
		"model", a.cfg.Chat.Model,
		"base_url", a.cfg.LLM.BaseURL,
	)

	// WebSocket Hub 先于 HTTP 启动，订阅总线后才能转发会话事件
	a.wsHub.Start()
	a.detachHub = a.wsHub.Attach(a.eventBus)

	a.setupConfigReload()
	if err := a.configWatcher.Start(); err != nil {
		a.logger.Error("Failed to start config watcher",
			"error", err,
		)
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	// 局域网广播失败不影响服务
	info, err := discovery.BuildServiceInfo(a.cfg, Version)
	if err != nil {
		a.logger.Warn("Failed to build mDNS service info",
			"error", err,
		)
	} else if err := a.advertiser.Start(info); err != nil {
		a.logger.Warn("Failed to start mDNS advertiser",
			"error", err,
		)
	}

	a.logger.Info("Streamchat backend application started successfully",
		"http_port", a.cfg.Server.HTTPPort,
	)
	return nil
}

// setupConfigReload 配置文件变化时同步会话参数与 LLM 地址
func (a *App) setupConfigReload() {
	a.configWatcher.OnReload(func(cfg *config.Config) {
		a.manager.ApplyConfig(&cfg.Chat)
	})
	a.configWatcher.OnReload(func(cfg *config.Config) {
		a.llmClient.Configure(cfg.LLM.BaseURL, cfg.LLM.APIKey)
		a.logger.Info("LLM endpoint reconfigured",
			"base_url", cfg.LLM.BaseURL,
		)
	})
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping streamchat backend application")

	// 先中止进行中的请求，让会话发布终止事件并落盘
	if n := a.manager.CancelAll(); n > 0 {
		a.logger.Info("Cancelled in-flight turns",
			"count", n,
		)
	}

	var stopErr error
	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		stopErr = err
	}

	a.configWatcher.Stop()
	a.advertiser.Stop()

	if a.detachHub != nil {
		a.detachHub()
	}
	a.wsHub.Stop()

	// 关闭事件总线，等待已发布事件处理完成
	a.eventBus.Close()
	a.logger.Info("Event bus closed")

	a.logger.Info("Streamchat backend application stopped")
	return stopErr
}
