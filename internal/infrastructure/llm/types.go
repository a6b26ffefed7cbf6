package llm

import (
	"bytes"
	"encoding/json"

	"github.com/streamchat/backend/internal/infrastructure/sse"
)

// ChatCompletionRequest Chat API 请求
type ChatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []ChatMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Plugins       []Plugin       `json:"plugins,omitempty"`
}

// StreamOptions 流式选项，include_usage 让厂商在末尾发送 usage 帧
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Plugin 厂商插件，联网搜索为 {"id":"web"}
type Plugin struct {
	ID string `json:"id"`
}

// WebSearchPlugin 联网搜索插件
var WebSearchPlugin = Plugin{ID: "web"}

// ChatMessage Chat 消息
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent 纯文本或多段内容
// Parts 为空时序列化为字符串
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// TextContent 纯文本内容
func TextContent(s string) MessageContent {
	return MessageContent{Text: s}
}

// MarshalJSON 实现 json.Marshaler
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON 实现 json.Unmarshaler
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	if data[0] == '[' {
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = MessageContent{Parts: parts}
		for _, p := range parts {
			if p.Type == PartText {
				c.Text += p.Text
			}
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = MessageContent{Text: s}
	return nil
}

// 内容段类型
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartFile     = "file"
)

// ContentPart 多模态内容段
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	File     *FilePart `json:"file,omitempty"`
}

// ImageURL 图片，通常为 data URL
type ImageURL struct {
	URL string `json:"url"`
}

// FilePart 文档
type FilePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// ChatCompletionResponse 非流式响应
type ChatCompletionResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice 非流式 choice
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage 非流式返回的助手消息
type ResponseMessage struct {
	Role        string                `json:"role"`
	Content     MessageContent        `json:"content"`
	Annotations []sse.FrameAnnotation `json:"annotations,omitempty"`
}

// Usage Token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorResponse 非 2xx 响应体
type errorResponse struct {
	Error *sse.FrameError `json:"error"`
}
