// Package log 基于 log/slog 的日志基础设施
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/streamchat/backend/internal/infrastructure/log/handler"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	debugMode     bool
	logFile       *os.File
)

// Init 初始化日志系统，cfg 为 nil 时读取环境变量
func Init(cfg *Config) {
	if cfg == nil {
		cfg = NewConfigFromEnv()
	}

	out, err := openOutput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log: %v, falling back to stdout\n", err)
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = handler.NewConsoleHandler(out, opts)
	}

	logger := slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", "streamchat-backend"),
	}))

	mu.Lock()
	defaultLogger = logger
	debugMode = strings.EqualFold(cfg.Level, "debug")
	mu.Unlock()

	slog.SetDefault(logger)
}

// openOutput 打开输出目标，文件输出会替换之前打开的文件
func openOutput(cfg *Config) (io.Writer, error) {
	if path := cfg.OutputFile(); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		mu.Lock()
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = f
		mu.Unlock()
		return f, nil
	}
	if strings.EqualFold(cfg.Output, "stderr") {
		return os.Stderr, nil
	}
	return os.Stdout, nil
}

// GetLogger 获取默认 logger
func GetLogger() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		Init(nil)
		mu.RLock()
		l = defaultLogger
		mu.RUnlock()
	}
	return l
}

// NewModuleLogger 为特定模块创建 logger
func NewModuleLogger(module, component string) *slog.Logger {
	return GetLogger().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

// IsDebugMode 是否为调试模式
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
