// Package tokenizer 在厂商未返回 usage 时估算 Token 用量
package tokenizer

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// 使用离线 BPE，避免运行时下载编码文件
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const (
	// encodingName cl100k_base 与主流聊天模型兼容
	encodingName = "cl100k_base"
	// perMessageOverhead 每条消息的角色与分隔符开销
	perMessageOverhead = 4
	// replyPriming 回复的起始标记
	replyPriming = 3
)

// Estimator Token 估算器
// tiktoken 加载失败时退化为按字符数的粗略估算
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
	logger   *slog.Logger
}

var (
	instance *Estimator
	once     sync.Once
)

// GetEstimator 获取单例，编码文件只加载一次
func GetEstimator() *Estimator {
	once.Do(func() {
		logger := log.NewModuleLogger("tokenizer", "estimator")
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			logger.Warn("Failed to load tiktoken encoding, using rune heuristic",
				"encoding", encodingName,
				"error", err,
			)
		}
		instance = &Estimator{encoding: enc, logger: logger}
		logger.Debug("Token estimator ready", "method", instance.Method())
	})
	return instance
}

// NewEstimator 供依赖注入使用
func NewEstimator() *Estimator {
	return GetEstimator()
}

// CountTokens 计算文本的 Token 数量
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e.encoding == nil {
		// 约 4 个字符一个 token
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Method 返回计算方法标识
func (e *Estimator) Method() string {
	if e.encoding == nil {
		return "heuristic"
	}
	return "tiktoken"
}

// EstimateUsage 按请求消息与回复内容估算用量
func (e *Estimator) EstimateUsage(prompt []string, completion string) chat.Usage {
	promptTokens := replyPriming
	for _, p := range prompt {
		promptTokens += perMessageOverhead + e.CountTokens(p)
	}
	completionTokens := e.CountTokens(completion)
	return chat.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Estimated:        true,
	}
}
