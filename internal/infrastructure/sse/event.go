// Package sse 将 OpenAI 兼容的 SSE 字节流解码为有序的流事件
package sse

import (
	"fmt"

	"github.com/streamchat/backend/internal/domain/chat"
)

// Kind 流事件类型
type Kind int

const (
	// KindContentDelta 内容增量
	KindContentDelta Kind = iota + 1
	// KindAnnotationDelta 新的引用来源
	KindAnnotationDelta
	// KindUsageDelta 用量
	KindUsageDelta
	// KindFinishSignal 非错误的 finish_reason，仅作信息
	KindFinishSignal
	// KindErrorSignal 厂商错误，终止
	KindErrorSignal
	// KindStreamEnd 正常结束（[DONE] 或连接关闭）
	KindStreamEnd
	// KindProcessing 厂商处理中心跳
	KindProcessing
	// KindCancelled 调用方取消，终止
	KindCancelled
	// KindTransportError 读取失败，终止
	KindTransportError
)

var kindNames = map[Kind]string{
	KindContentDelta:    "content_delta",
	KindAnnotationDelta: "annotation_delta",
	KindUsageDelta:      "usage_delta",
	KindFinishSignal:    "finish",
	KindErrorSignal:     "error",
	KindStreamEnd:       "stream_end",
	KindProcessing:      "processing",
	KindCancelled:       "cancelled",
	KindTransportError:  "transport_error",
}

// String 实现 fmt.Stringer
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// StreamEnd 的结束原因
const (
	EndReasonDone = "done"
	EndReasonEOF  = "eof"
)

// Event 流事件，按 Kind 读取对应字段
type Event struct {
	Kind Kind

	// Text ContentDelta 的文本
	Text string
	// Citation AnnotationDelta 的引用
	Citation chat.Citation
	// Usage UsageDelta 的用量
	Usage chat.Usage
	// Reason FinishSignal 的 finish_reason，或 StreamEnd 的结束原因
	Reason string
	// Message / Code ErrorSignal 的厂商错误
	Message string
	Code    string
	// Comment Processing 的原始注释文本
	Comment string
	// Err TransportError 的底层错误
	Err error
}

// IsTerminal 是否为终止事件
func (e Event) IsTerminal() bool {
	switch e.Kind {
	case KindStreamEnd, KindErrorSignal, KindCancelled, KindTransportError:
		return true
	}
	return false
}

// Outcome 一次解码或一轮对话的三态结果
type Outcome int

const (
	// OutcomeCompleted 正常完成
	OutcomeCompleted Outcome = iota + 1
	// OutcomeCancelled 被取消
	OutcomeCancelled
	// OutcomeFailed 失败
	OutcomeFailed
)

// String 实现 fmt.Stringer
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// OutcomeOf 将终止事件映射为结果，非终止事件返回 0 和 false
func OutcomeOf(ev Event) (Outcome, bool) {
	switch ev.Kind {
	case KindStreamEnd:
		return OutcomeCompleted, true
	case KindCancelled:
		return OutcomeCancelled, true
	case KindErrorSignal, KindTransportError:
		return OutcomeFailed, true
	}
	return 0, false
}
