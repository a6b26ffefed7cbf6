// Package discovery 通过 mDNS 在局域网内广播服务地址
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

const (
	// ServiceType mDNS 服务类型
	ServiceType = "_streamchat._tcp"
	// Domain mDNS 域
	Domain = "local."
)

// ServiceInfo 广播的服务信息
type ServiceInfo struct {
	Instance   string
	Port       int
	TxtRecords map[string]string
}

// TXT 按 key 排序的 TXT 记录
func (s ServiceInfo) TXT() []string {
	keys := make([]string, 0, len(s.TxtRecords))
	for k := range s.TxtRecords {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, s.TxtRecords[k]))
	}
	return out
}

// BuildServiceInfo 由配置构造服务信息
func BuildServiceInfo(cfg *config.Config, version string) (ServiceInfo, error) {
	port, err := ParsePort(cfg.Server.HTTPPort)
	if err != nil {
		return ServiceInfo{}, err
	}
	return ServiceInfo{
		Instance: cfg.Discovery.Instance,
		Port:     port,
		TxtRecords: map[string]string{
			"version":  version,
			"model":    cfg.Chat.Model,
			"mcp_port": cfg.Server.MCPPort,
			"api":      "/api/v1",
		},
	}, nil
}

// ParsePort 解析 ":19970" 或 "host:19970" 形式的监听地址
func ParsePort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

// Advertiser mDNS 服务广播器
type Advertiser struct {
	mu      sync.Mutex
	enabled bool
	server  *zeroconf.Server
	info    *ServiceInfo
	logger  *slog.Logger
}

// NewAdvertiser 创建广播器，未启用时 Start 不做任何事
func NewAdvertiser(enabled bool) *Advertiser {
	return &Advertiser{
		enabled: enabled,
		logger:  log.NewModuleLogger("discovery", "mdns_advertiser"),
	}
}

// ProvideAdvertiser 由配置创建广播器
func ProvideAdvertiser(cfg *config.Config) *Advertiser {
	return NewAdvertiser(cfg.Discovery.Enabled)
}

// Start 开始广播服务
func (a *Advertiser) Start(info ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		a.logger.Debug("mDNS advertisement disabled")
		return nil
	}
	if a.server != nil {
		return fmt.Errorf("advertiser is already running")
	}

	server, err := zeroconf.Register(info.Instance, ServiceType, Domain, info.Port, info.TXT(), nil)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	a.server = server
	a.info = &info

	a.logger.Info("mDNS advertiser started",
		"instance", info.Instance,
		"port", info.Port,
		"txt_records", info.TXT(),
	)
	return nil
}

// Stop 停止广播
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.info = nil
	a.logger.Info("mDNS advertiser stopped")
}

// IsRunning 是否正在广播
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}
