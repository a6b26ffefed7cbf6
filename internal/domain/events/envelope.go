package events

// Envelope 推送给客户端的事件外层结构
type Envelope struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

// NewEnvelope 包装事件，Type 使用短名称
func NewEnvelope(ev Event) Envelope {
	return Envelope{Type: ev.Type().ShortName(), Data: ev}
}
