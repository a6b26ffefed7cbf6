package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// DefaultDebounceDelay 编辑器保存时常连续触发多次写事件
const DefaultDebounceDelay = 300 * time.Millisecond

// ReloadFunc 配置重新加载成功后的回调
type ReloadFunc func(cfg *config.Config)

// Loader 读取配置文件
type Loader func(path string) (*config.Config, error)

// ConfigWatcher 监听配置文件变化并热更新
type ConfigWatcher struct {
	path     string
	loader   Loader
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu       sync.Mutex
	handlers []ReloadFunc
	timer    *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(path string, loader Loader, debounce time.Duration) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if loader == nil {
		loader = config.Reload
	}
	if debounce <= 0 {
		debounce = DefaultDebounceDelay
	}
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		loader:   loader,
		debounce: debounce,
		watcher:  w,
		stopCh:   make(chan struct{}),
		logger:   log.NewModuleLogger("watcher", "config_watcher"),
	}, nil
}

// OnReload 注册回调，按注册顺序调用
func (cw *ConfigWatcher) OnReload(fn ReloadFunc) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, fn)
}

// Start 启动监听
// 监听所在目录而不是文件本身，编辑器以重命名方式保存时文件 inode 会变化
func (cw *ConfigWatcher) Start() error {
	dir := filepath.Dir(cw.path)
	if _, err := os.Stat(dir); err != nil {
		cw.logger.Warn("Config directory not found, hot reload disabled",
			"dir", dir,
			"error", err,
		)
		return nil
	}
	if err := cw.watcher.Add(dir); err != nil {
		return err
	}

	cw.logger.Info("Watching config file", "path", cw.path)
	cw.wg.Add(1)
	go cw.watchLoop()
	return nil
}

// Stop 停止监听
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		_ = cw.watcher.Close()
		cw.wg.Wait()

		cw.mu.Lock()
		if cw.timer != nil {
			cw.timer.Stop()
		}
		cw.mu.Unlock()
		cw.logger.Info("Config watcher stopped")
	})
}

func (cw *ConfigWatcher) watchLoop() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				cw.schedule()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Watcher error", "error", err)
		}
	}
}

// schedule 防抖
func (cw *ConfigWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

// reload 新配置无效时保留旧配置
func (cw *ConfigWatcher) reload() {
	cfg, err := cw.loader(cw.path)
	if err != nil {
		cw.logger.Warn("Config reload rejected, keeping previous config",
			"path", cw.path,
			"error", err,
		)
		return
	}

	cw.mu.Lock()
	handlers := append([]ReloadFunc(nil), cw.handlers...)
	cw.mu.Unlock()

	for _, fn := range handlers {
		fn(cfg)
	}
	cw.logger.Info("Config reloaded",
		"path", cw.path,
		"model", cfg.Chat.Model,
		"handlers", len(handlers),
	)
}
