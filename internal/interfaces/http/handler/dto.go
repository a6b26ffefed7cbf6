package handler

import (
	domainChat "github.com/streamchat/backend/internal/domain/chat"
)

// ImageDTO 图片附件
type ImageDTO struct {
	MimeType string `json:"mime_type" binding:"required"`
	Data     string `json:"data" binding:"required"`
}

// DocumentDTO 文档附件
type DocumentDTO struct {
	Filename string `json:"filename" binding:"required"`
	Data     string `json:"data" binding:"required"`
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Text      string        `json:"text"`
	Images    []ImageDTO    `json:"images"`
	Documents []DocumentDTO `json:"documents"`
	// Stream 为 true 时以 SSE 转发事件，缺省时根据 Accept 头判断
	Stream *bool `json:"stream,omitempty"`
}

// Attachments 转换为领域附件
func (r *SendMessageRequest) Attachments() domainChat.Attachments {
	var att domainChat.Attachments
	for _, img := range r.Images {
		att.Images = append(att.Images, domainChat.ImageAttachment{MimeType: img.MimeType, Data: img.Data})
	}
	for _, doc := range r.Documents {
		att.Documents = append(att.Documents, domainChat.DocumentAttachment{Filename: doc.Filename, Data: doc.Data})
	}
	return att
}

// EditMessageRequest 编辑并重发请求
type EditMessageRequest struct {
	Text   string `json:"text"`
	Stream *bool  `json:"stream,omitempty"`
}

// RegenerateRequest 重新生成请求
type RegenerateRequest struct {
	Stream *bool `json:"stream,omitempty"`
}

// ConversationDTO 新建会话响应
type ConversationDTO struct {
	ID string `json:"id"`
}

// HistoryDTO 会话历史
type HistoryDTO struct {
	ID        string                `json:"id"`
	IsLoading bool                  `json:"is_loading"`
	Messages  []*domainChat.Message `json:"messages"`
}

// CancelDTO 取消结果
type CancelDTO struct {
	Cancelled bool `json:"cancelled"`
}
