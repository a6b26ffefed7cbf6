// @title streamchat API
// @version 1.0
// @description 流式对话后端 API 服务，兼容 OpenAI Chat Completions
// @host localhost:19970
// @BasePath /api/v1
// @schemes http
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/streamchat/backend/internal/infrastructure/config"
	applog "github.com/streamchat/backend/internal/infrastructure/log"
	"github.com/streamchat/backend/internal/infrastructure/singleton"
	"github.com/streamchat/backend/internal/wire"
)

func main() {
	// 初始化日志系统
	applog.Init(nil)
	logger := applog.GetLogger()

	// 加载配置获取端口
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config",
			"error", err,
		)
		os.Exit(1)
	}

	// 单例锁检查：尝试获取端口
	listener, err := singleton.Acquire(cfg.Server.HTTPPort)
	if errors.Is(err, singleton.ErrAlreadyRunning) {
		logger.Info("Another instance is already running, exiting",
			"port", cfg.Server.HTTPPort,
		)
		os.Exit(0)
	}
	if err != nil {
		logger.Error("Failed to acquire instance lock",
			"port", cfg.Server.HTTPPort,
			"error", err,
		)
		os.Exit(1)
	}
	// 关闭临时 listener，实际监听由 HTTP 服务器负责
	_ = listener.Close()

	// Wire 自动生成的初始化函数
	app, cleanup, err := wire.InitializeAll()
	if err != nil {
		logger.Error("Failed to initialize application",
			"error", err,
		)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Start(); err != nil {
		logger.Error("Failed to start application",
			"error", err,
		)
		cleanup()
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		logger.Error("Error during application shutdown",
			"error", err,
		)
	}
	logger.Info("Application stopped")
}
