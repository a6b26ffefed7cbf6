package sse

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/streamchat/backend/internal/domain/chat"
)

// Frame data 行负载的显式结构，所有字段可选
type Frame struct {
	Choices []FrameChoice `json:"choices"`
	Usage   *FrameUsage   `json:"usage,omitempty"`
	Error   *FrameError   `json:"error,omitempty"`
}

// FrameChoice 单个 choice
type FrameChoice struct {
	Delta        FrameDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

// FrameDelta 增量
type FrameDelta struct {
	Content     *string           `json:"content,omitempty"`
	Annotations []FrameAnnotation `json:"annotations,omitempty"`
}

// FrameAnnotation 注解，目前只识别 url_citation
type FrameAnnotation struct {
	Type        string       `json:"type"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation 联网搜索引用
type URLCitation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// FrameUsage 用量
type FrameUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FrameError 厂商错误
type FrameError struct {
	Message string   `json:"message"`
	Code    FlexCode `json:"code"`
	Type    string   `json:"type,omitempty"`
}

// UnmarshalJSON 兼容 "error": "text" 的简写形式
func (e *FrameError) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Message)
	}
	type plain FrameError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = FrameError(p)
	return nil
}

// FlexCode 兼容数字与字符串两种错误码
type FlexCode string

// UnmarshalJSON 实现 json.Unmarshaler
func (c *FlexCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = FlexCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// 非数字非字符串的错误码不影响整帧解析
		*c = ""
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*c = FlexCode(strconv.FormatInt(i, 10))
		return nil
	}
	*c = FlexCode(n.String())
	return nil
}

// Citation 转为领域模型
func (u *URLCitation) Citation() chat.Citation {
	return chat.Citation{
		URL:        u.URL,
		Title:      u.Title,
		StartIndex: u.StartIndex,
		EndIndex:   u.EndIndex,
	}
}

func chatUsage(u *FrameUsage) chat.Usage {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return chat.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      total,
	}
}

// parseFrame 解析 data 负载
func parseFrame(payload []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
