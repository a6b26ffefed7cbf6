// Package llm OpenAI 兼容的 Chat Completions 客户端
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/streamchat/backend/internal/infrastructure/log"
)

// DefaultBaseURL 默认 API 地址
const DefaultBaseURL = "https://api.openai.com/v1"

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// APIError 流开始前的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Type       string
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("LLM API error [%d]: %s", e.StatusCode, e.Message)
}

// ClientConfig 客户端配置
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Referer / Title 部分聚合厂商用于识别应用
	Referer string
	Title   string
	// Timeout 非流式请求超时，流式请求只限制等待响应头的时间
	Timeout time.Duration
}

// Client LLM Chat 客户端
type Client struct {
	mu         sync.RWMutex
	cfg        ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 LLM 客户端
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		cfg: cfg,
		// 不设置 Client.Timeout，否则长流会被截断
		httpClient: &http.Client{Transport: transport},
		logger:     log.NewModuleLogger("llm", "client"),
	}
}

// Configure 热更新地址与密钥
func (c *Client) Configure(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.BaseURL = normalizeBaseURL(baseURL)
	c.cfg.APIKey = apiKey
}

func normalizeBaseURL(u string) string {
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (c *Client) snapshot() ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// CreateChatCompletion 非流式请求
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	cfg := c.snapshot()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	r := *req
	r.Stream = false
	r.StreamOptions = nil

	resp, err := c.do(ctx, cfg, &r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode LLM response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("LLM API returned no choices")
	}

	c.logger.Debug("LLM completion received",
		"model", r.Model,
		"finish_reason", result.Choices[0].FinishReason,
	)
	return &result, nil
}

// OpenStream 发起流式请求，返回响应体
// 调用方负责关闭；取消 ctx 会中断读取
func (c *Client) OpenStream(ctx context.Context, req *ChatCompletionRequest) (io.ReadCloser, error) {
	cfg := c.snapshot()

	r := *req
	r.Stream = true

	resp, err := c.do(ctx, cfg, &r)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("LLM stream opened",
		"model", r.Model,
		"content_type", resp.Header.Get("Content-Type"),
	)
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, cfg ClientConfig, req *ChatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", cfg.Referer)
	}
	if cfg.Title != "" {
		httpReq.Header.Set("X-Title", cfg.Title)
	}

	c.logger.Debug("Sending LLM request",
		"url", url,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM API request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// readAPIError 解析错误体，兼容 {"error":{...}} 与纯文本
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != nil {
		apiErr.Message = er.Error.Message
		apiErr.Code = string(er.Error.Code)
		apiErr.Type = er.Error.Type
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Code == "" {
		apiErr.Code = fmt.Sprintf("%d", resp.StatusCode)
	}
	return apiErr
}
