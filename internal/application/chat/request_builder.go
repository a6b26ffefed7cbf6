package chat

import (
	"mime"
	"path/filepath"
	"strings"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/infrastructure/llm"
)

// BuildRequest 由历史构造补全请求
// 系统提示词在最前，内容为空的助手消息（占位或空取消）被跳过
func BuildRequest(opts Options, history []*domainChat.Message) *llm.ChatCompletionRequest {
	req := &llm.ChatCompletionRequest{
		Model:       opts.Model,
		Stream:      opts.Stream,
		Temperature: opts.Temperature,
	}
	if opts.Stream {
		req.StreamOptions = &llm.StreamOptions{IncludeUsage: true}
	}
	if opts.MaxTokens > 0 {
		n := opts.MaxTokens
		req.MaxTokens = &n
	}
	if opts.WebSearch {
		req.Plugins = []llm.Plugin{llm.WebSearchPlugin}
	}

	if p := strings.TrimSpace(opts.SystemPrompt); p != "" {
		req.Messages = append(req.Messages, llm.ChatMessage{
			Role:    string(domainChat.RoleSystem),
			Content: llm.TextContent(opts.SystemPrompt),
		})
	}

	for _, m := range history {
		if m.Role == domainChat.RoleAssistant && m.Content == "" {
			continue
		}
		req.Messages = append(req.Messages, llm.ChatMessage{
			Role:    string(m.Role),
			Content: messageContent(m),
		})
	}
	return req
}

func messageContent(m *domainChat.Message) llm.MessageContent {
	if m.Role != domainChat.RoleUser || m.Attachments.IsEmpty() {
		return llm.TextContent(m.Content)
	}

	parts := make([]llm.ContentPart, 0, 1+len(m.Attachments.Images)+len(m.Attachments.Documents))
	if m.Content != "" {
		parts = append(parts, llm.ContentPart{Type: llm.PartText, Text: m.Content})
	}
	for _, img := range m.Attachments.Images {
		parts = append(parts, llm.ContentPart{
			Type:     llm.PartImageURL,
			ImageURL: &llm.ImageURL{URL: img.DataURL()},
		})
	}
	for _, doc := range m.Attachments.Documents {
		parts = append(parts, llm.ContentPart{
			Type: llm.PartFile,
			File: &llm.FilePart{Filename: doc.Filename, FileData: documentDataURL(doc)},
		})
	}
	return llm.MessageContent{Text: m.Content, Parts: parts}
}

func documentDataURL(doc domainChat.DocumentAttachment) string {
	if strings.HasPrefix(doc.Data, "data:") {
		return doc.Data
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(doc.Filename)))
	if mt == "" {
		mt = "application/octet-stream"
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return "data:" + mt + ";base64," + doc.Data
}

// promptTexts 请求中各消息的文本，用于估算用量
func promptTexts(req *llm.ChatCompletionRequest) []string {
	out := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		out = append(out, m.Content.Text)
	}
	return out
}
