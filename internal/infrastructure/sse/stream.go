package sse

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/streamchat/backend/internal/infrastructure/log"
)

// DefaultChunkSize 默认单次读取大小
const DefaultChunkSize = 4096

type streamOptions struct {
	chunkSize int
	logger    *slog.Logger
}

// Option Stream 选项
type Option func(*streamOptions)

// WithChunkSize 设置单次读取大小
func WithChunkSize(n int) Option {
	return func(o *streamOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger 设置 logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *streamOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// Stream 从 r 读取并按字节顺序投递事件
// 最后一个事件一定是终止事件（StreamEnd、ErrorSignal、TransportError 或 Cancelled），随后关闭通道
// 每处理一块数据前检查 ctx，取消不会被报告为错误
// ctx 取消后投递不再阻塞：提前停止读取的调用方取消 ctx 即可释放 goroutine，
// 此时通道可能在没有终止事件的情况下关闭；r 的关闭由调用方负责
func Stream(ctx context.Context, r io.Reader, opts ...Option) <-chan Event {
	o := streamOptions{
		chunkSize: DefaultChunkSize,
		logger:    log.NewModuleLogger("sse", "stream"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	out := make(chan Event, 16)
	go run(ctx, r, o, out)
	return out
}

func run(ctx context.Context, r io.Reader, o streamOptions, out chan<- Event) {
	defer close(out)

	stop := make(chan struct{})
	defer close(stop)
	chunks := make(chan readResult)
	go readLoop(r, o.chunkSize, chunks, stop)

	dec := NewDecoder().WithDecoderLogger(o.logger)
	// send 返回 false 表示 ctx 已取消，事件未必送达
	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			cancelled(out)
			return false
		}
	}
	// emitAll 返回 true 表示已投递终止事件或已取消
	emitAll := func(evs []Event) bool {
		for _, ev := range evs {
			if !send(ev) || ev.IsTerminal() {
				return true
			}
		}
		return false
	}

	for {
		var res readResult
		select {
		case <-ctx.Done():
			cancelled(out)
			return
		case res = <-chunks:
		}

		if ctx.Err() != nil {
			cancelled(out)
			return
		}

		if len(res.data) > 0 && emitAll(dec.Feed(res.data)) {
			return
		}
		if res.err == nil {
			continue
		}

		if errors.Is(res.err, io.EOF) {
			if emitAll(dec.Flush()) {
				return
			}
			o.logger.Warn("Stream closed without [DONE] sentinel, treating as complete")
			send(Event{Kind: KindStreamEnd, Reason: EndReasonEOF})
			return
		}

		// 取消导致的读错误（连接被关闭）不算失败
		if ctx.Err() != nil {
			cancelled(out)
			return
		}
		o.logger.Warn("Stream read failed", "error", res.err)
		send(Event{Kind: KindTransportError, Err: res.err})
		return
	}
}

// cancelled 尽量投递 Cancelled；调用方已停止读取且缓冲已满时直接放弃
func cancelled(out chan<- Event) {
	select {
	case out <- Event{Kind: KindCancelled}:
	default:
	}
}

func readLoop(r io.Reader, size int, chunks chan<- readResult, stop <-chan struct{}) {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		res := readResult{data: buf[:n], err: err}
		if n == 0 && err == nil {
			continue
		}
		select {
		case chunks <- res:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// Collect 读完整个流，返回全部事件及结果
func Collect(ctx context.Context, r io.Reader, opts ...Option) ([]Event, Outcome) {
	var all []Event
	outcome := OutcomeCompleted
	for ev := range Stream(ctx, r, opts...) {
		all = append(all, ev)
		if o, ok := OutcomeOf(ev); ok {
			outcome = o
		}
	}
	return all, outcome
}
