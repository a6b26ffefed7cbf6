package sse

import (
	"bytes"
	"log/slog"

	"github.com/streamchat/backend/internal/infrastructure/log"
)

const finishReasonError = "error"

var (
	doneSentinel     = []byte("[DONE]")
	processingMarker = []byte("processing")
)

// Decoder 增量 SSE 解码器
// 按字节缓冲，只解析完整的行，跨块拆分的多字节字符不会损坏
// 非并发安全，一个 Decoder 只用于一次响应
type Decoder struct {
	buf    []byte
	seen   map[string]struct{}
	done   bool
	logger *slog.Logger
}

// NewDecoder 创建解码器
func NewDecoder() *Decoder {
	return &Decoder{
		seen:   make(map[string]struct{}),
		logger: log.NewModuleLogger("sse", "decoder"),
	}
}

// WithDecoderLogger 替换 logger
func (d *Decoder) WithDecoderLogger(logger *slog.Logger) *Decoder {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Done 是否已遇到终止事件（[DONE] 或厂商错误）
func (d *Decoder) Done() bool {
	return d.done
}

// Feed 追加一块字节并返回其中完整行产生的事件
// 终止后再调用返回 nil
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var out []Event
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		out = d.processLine(line, out)
		d.buf = d.buf[i+1:]
	}
	if d.done || len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Flush 把缓冲中剩余的不完整行当作最后一行解析
func (d *Decoder) Flush() []Event {
	if d.done || len(d.buf) == 0 {
		d.buf = nil
		return nil
	}
	line := d.buf
	d.buf = nil
	return d.processLine(line, nil)
}

func (d *Decoder) processLine(line []byte, out []Event) []Event {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return out
	}

	if line[0] == ':' {
		comment := bytes.TrimSpace(line[1:])
		if bytes.Contains(bytes.ToLower(comment), processingMarker) {
			out = append(out, Event{Kind: KindProcessing, Comment: string(comment)})
		}
		return out
	}

	field, value, _ := bytes.Cut(line, []byte(":"))
	if string(field) != "data" {
		// event/id/retry 以及未知字段
		return out
	}
	value = bytes.TrimPrefix(value, []byte(" "))
	payload := bytes.TrimSpace(value)
	if len(payload) == 0 {
		return out
	}
	if bytes.Equal(payload, doneSentinel) {
		d.done = true
		return append(out, Event{Kind: KindStreamEnd, Reason: EndReasonDone})
	}

	frame, err := parseFrame(payload)
	if err != nil {
		d.logger.Debug("Skipping malformed frame",
			"error", err,
			"payload_size", len(payload),
		)
		return out
	}
	return d.frameEvents(frame, out)
}

// frameEvents 单帧事件顺序：error, content, annotations, finish, usage
func (d *Decoder) frameEvents(f *Frame, out []Event) []Event {
	if f.Error != nil {
		d.done = true
		return append(out, Event{
			Kind:    KindErrorSignal,
			Message: f.Error.Message,
			Code:    string(f.Error.Code),
		})
	}

	var finish []string
	for _, choice := range f.Choices {
		if c := choice.Delta.Content; c != nil && *c != "" {
			out = append(out, Event{Kind: KindContentDelta, Text: *c})
		}
		for _, ann := range choice.Delta.Annotations {
			if ann.Type != "url_citation" || ann.URLCitation == nil || ann.URLCitation.URL == "" {
				continue
			}
			if _, dup := d.seen[ann.URLCitation.URL]; dup {
				continue
			}
			d.seen[ann.URLCitation.URL] = struct{}{}
			out = append(out, Event{Kind: KindAnnotationDelta, Citation: ann.URLCitation.Citation()})
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finish = append(finish, *choice.FinishReason)
		}
	}

	for _, reason := range finish {
		if reason == finishReasonError {
			d.done = true
			return append(out, Event{
				Kind:    KindErrorSignal,
				Message: "provider finished with error",
				Code:    finishReasonError,
			})
		}
		out = append(out, Event{Kind: KindFinishSignal, Reason: reason})
	}

	if f.Usage != nil {
		out = append(out, Event{Kind: KindUsageDelta, Usage: chatUsage(f.Usage)})
	}
	return out
}
