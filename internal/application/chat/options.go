package chat

import (
	"context"
	"io"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/llm"
)

// Completer 上游补全接口，由 llm.Client 实现
type Completer interface {
	CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
	OpenStream(ctx context.Context, req *llm.ChatCompletionRequest) (io.ReadCloser, error)
}

// TokenCounter 厂商未返回 usage 时的估算器
type TokenCounter interface {
	EstimateUsage(prompt []string, completion string) domainChat.Usage
}

var _ Completer = (*llm.Client)(nil)

// Options 会话参数
type Options struct {
	Model        string
	SystemPrompt string
	Stream       bool
	WebSearch    bool
	Temperature  *float64
	MaxTokens    int
	// Tokens 为 nil 时不估算用量
	Tokens TokenCounter
}

// OptionsFromConfig 从配置构造会话参数
func OptionsFromConfig(c *config.ChatConfig, tokens TokenCounter) Options {
	opts := Options{
		Model:        c.Model,
		SystemPrompt: c.SystemPrompt,
		Stream:       c.Stream,
		WebSearch:    c.WebSearch,
		MaxTokens:    c.MaxTokens,
	}
	if c.Temperature != nil {
		t := *c.Temperature
		opts.Temperature = &t
	}
	if c.EstimateUsage {
		opts.Tokens = tokens
	}
	return opts
}
