package chat

// History 按时间顺序排列的对话历史
// 非并发安全，由 Session 在锁内持有
type History struct {
	messages []*Message
}

// NewHistory 从已有消息构造历史
func NewHistory(messages []*Message) *History {
	h := &History{}
	for _, m := range messages {
		h.messages = append(h.messages, m)
	}
	return h
}

// Len 消息数
func (h *History) Len() int {
	return len(h.messages)
}

// Append 追加消息
func (h *History) Append(m *Message) {
	h.messages = append(h.messages, m)
}

// At 按下标取消息
func (h *History) At(i int) *Message {
	if i < 0 || i >= len(h.messages) {
		return nil
	}
	return h.messages[i]
}

// IndexOf 查找消息下标，不存在返回 -1
func (h *History) IndexOf(id string) int {
	for i, m := range h.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Remove 移除指定消息，返回是否存在
func (h *History) Remove(id string) bool {
	i := h.IndexOf(id)
	if i < 0 {
		return false
	}
	h.messages = append(h.messages[:i], h.messages[i+1:]...)
	return true
}

// TruncateBefore 截断到 index 之前（丢弃 index 及之后的消息）
func (h *History) TruncateBefore(index int) {
	if index < 0 {
		index = 0
	}
	if index >= len(h.messages) {
		return
	}
	for i := index; i < len(h.messages); i++ {
		h.messages[i] = nil
	}
	h.messages = h.messages[:index]
}

// LastIndexOfRole 最后一条指定角色消息的下标，不存在返回 -1
func (h *History) LastIndexOfRole(role Role) int {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == role {
			return i
		}
	}
	return -1
}

// Messages 返回内部切片（仅限持有者在锁内使用）
func (h *History) Messages() []*Message {
	return h.messages
}

// Snapshot 返回深拷贝
func (h *History) Snapshot() []*Message {
	out := make([]*Message, 0, len(h.messages))
	for _, m := range h.messages {
		out = append(out, m.Clone())
	}
	return out
}

// StreamingCount 处于 streaming/pending 状态的助手消息数
func (h *History) StreamingCount() int {
	n := 0
	for _, m := range h.messages {
		if m.Role == RoleAssistant && (m.Status == StatusStreaming || m.Status == StatusPending) {
			n++
		}
	}
	return n
}
