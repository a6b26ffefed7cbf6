// Package config 应用配置：默认值 -> YAML 文件 -> 环境变量
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	EnvHTTPPort     = "STREAMCHAT_HTTP_PORT"
	EnvMCPPort      = "STREAMCHAT_MCP_PORT"
	EnvAPIBaseURL   = "STREAMCHAT_API_BASE_URL"
	EnvAPIKey       = "STREAMCHAT_API_KEY"
	EnvModel        = "STREAMCHAT_MODEL"
	EnvSystemPrompt = "STREAMCHAT_SYSTEM_PROMPT"
	EnvStream       = "STREAMCHAT_STREAM"
	EnvWebSearch    = "STREAMCHAT_WEB_SEARCH"
	EnvDBPath       = "STREAMCHAT_DB_PATH"
	EnvConfigFile   = "STREAMCHAT_CONFIG_FILE"
	EnvMDNS         = "STREAMCHAT_MDNS"
)

// DefaultConfigFileName 数据目录下的默认配置文件
const DefaultConfigFileName = "config.yaml"

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	LLM       LLMConfig       `yaml:"llm"`
	Chat      ChatConfig      `yaml:"chat"`
	Discovery DiscoveryConfig `yaml:"discovery"`

	// File 实际加载的配置文件路径，未加载时为空
	File string `yaml:"-"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
	MCPPort  string `yaml:"mcp_port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 为空时使用数据目录下的 streamchat.db
	Path string `yaml:"path"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// LLMConfig 上游 API 配置
type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Referer string        `yaml:"referer"`
	Title   string        `yaml:"title"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig 会话默认参数，可热更新
type ChatConfig struct {
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Stream       bool     `yaml:"stream"`
	WebSearch    bool     `yaml:"web_search"`
	Temperature  *float64 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	// EstimateUsage 厂商未返回 usage 时用 tiktoken 估算
	EstimateUsage bool `yaml:"estimate_usage"`
}

// DiscoveryConfig 局域网 mDNS 广播
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// defaults 默认值
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19970",
			MCPPort:  ":19971",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Title:   "streamchat",
			Timeout: 60 * time.Second,
		},
		Chat: ChatConfig{
			Model:         "gpt-4o-mini",
			Stream:        true,
			EstimateUsage: true,
		},
		Discovery: DiscoveryConfig{
			Instance: "streamchat",
		},
	}
}

// NewConfig 默认值叠加环境变量
func NewConfig() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// Load 默认值 -> 配置文件（若存在）-> 环境变量，并校验
func Load() (*Config, error) {
	cfg := defaults()

	path := ConfigFilePath()
	if _, err := os.Stat(path); err == nil {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
		cfg.File = path
	} else if os.Getenv(EnvConfigFile) != "" {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 只读取指定文件（不叠加环境变量），用于热更新
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if err := cfg.overlayFile(path); err != nil {
		return nil, err
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload 重新读取配置文件并叠加环境变量，环境变量优先
func Reload(path string) (*Config, error) {
	cfg := defaults()
	if err := cfg.overlayFile(path); err != nil {
		return nil, err
	}
	cfg.File = path
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFilePath 配置文件路径
func ConfigFilePath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return filepath.Join(GetDataDir(), DefaultConfigFileName)
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.HTTPPort, EnvHTTPPort)
	setString(&c.Server.MCPPort, EnvMCPPort)
	setString(&c.LLM.BaseURL, EnvAPIBaseURL)
	setString(&c.LLM.APIKey, EnvAPIKey)
	setString(&c.Chat.Model, EnvModel)
	setString(&c.Chat.SystemPrompt, EnvSystemPrompt)
	setString(&c.Database.Path, EnvDBPath)
	setBool(&c.Chat.Stream, EnvStream)
	setBool(&c.Chat.WebSearch, EnvWebSearch)
	setBool(&c.Discovery.Enabled, EnvMDNS)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPPort == "" {
		errs = append(errs, errors.New("server.http_port is required"))
	}
	if strings.TrimSpace(c.Chat.Model) == "" {
		errs = append(errs, errors.New("chat.model is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("llm.base_url %q is not an absolute URL", c.LLM.BaseURL))
	}
	if c.Chat.MaxTokens < 0 {
		errs = append(errs, errors.New("chat.max_tokens must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DBPath 数据库文件路径
func (c *Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(GetDataDir(), "streamchat.db")
}

// NewServerConfig 服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewChatConfig 会话配置
func NewChatConfig(cfg *Config) *ChatConfig {
	return &cfg.Chat
}
