// Package chat 定义对话领域模型：消息、引用来源、附件与用量
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role 消息角色
type Role string

const (
	// RoleUser 用户消息
	RoleUser Role = "user"
	// RoleAssistant 助手消息
	RoleAssistant Role = "assistant"
	// RoleSystem 系统提示词
	RoleSystem Role = "system"
)

// Status 消息生命周期状态
type Status string

const (
	// StatusPending 占位消息已创建，尚未收到内容
	StatusPending Status = "pending"
	// StatusStreaming 正在接收增量
	StatusStreaming Status = "streaming"
	// StatusComplete 已完成
	StatusComplete Status = "complete"
	// StatusCancelled 用户中止，保留部分内容
	StatusCancelled Status = "cancelled"
)

// IsTerminal 是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

// Citation 联网搜索引用来源，以 URL 去重
type Citation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// ImageAttachment 内联图片（base64）
type ImageAttachment struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// DataURL 返回 data URL 形式
func (a ImageAttachment) DataURL() string {
	if strings.HasPrefix(a.Data, "data:") {
		return a.Data
	}
	mime := a.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + a.Data
}

// DocumentAttachment 文档附件（base64 + 文件名）
type DocumentAttachment struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// Attachments 消息附件集合
type Attachments struct {
	Images    []ImageAttachment    `json:"images,omitempty"`
	Documents []DocumentAttachment `json:"documents,omitempty"`
}

// IsEmpty 是否没有任何附件
func (a Attachments) IsEmpty() bool {
	return len(a.Images) == 0 && len(a.Documents) == 0
}

// Clone 深拷贝
func (a Attachments) Clone() Attachments {
	out := Attachments{}
	if len(a.Images) > 0 {
		out.Images = append([]ImageAttachment(nil), a.Images...)
	}
	if len(a.Documents) > 0 {
		out.Documents = append([]DocumentAttachment(nil), a.Documents...)
	}
	return out
}

// Usage Token 用量
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Message 对话中的一条消息
type Message struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	Content     string      `json:"content"`
	Sources     []Citation  `json:"sources,omitempty"`
	Attachments Attachments `json:"attachments,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Status      Status      `json:"status"`
	Usage       *Usage      `json:"usage,omitempty"`
}

// NewUserMessage 创建用户消息
func NewUserMessage(text string, attachments Attachments) *Message {
	return &Message{
		ID:          uuid.New().String(),
		Role:        RoleUser,
		Content:     text,
		Attachments: attachments.Clone(),
		Timestamp:   time.Now(),
		Status:      StatusComplete,
	}
}

// NewAssistantPlaceholder 创建空的助手占位消息
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Status:    StatusPending,
	}
}

// NewAssistantMessage 创建完整的助手消息（非流式）
func NewAssistantMessage(content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Status:    StatusComplete,
	}
}

// AddSource 追加引用来源，URL 已存在时忽略并返回 false
func (m *Message) AddSource(c Citation) bool {
	for _, s := range m.Sources {
		if s.URL == c.URL {
			return false
		}
	}
	m.Sources = append(m.Sources, c)
	return true
}

// Clone 深拷贝，发布到会话外部的消息都应该是副本
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if len(m.Sources) > 0 {
		out.Sources = append([]Citation(nil), m.Sources...)
	}
	out.Attachments = m.Attachments.Clone()
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	return &out
}
