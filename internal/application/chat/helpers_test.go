package chat

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/eventbus"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	"github.com/streamchat/backend/internal/infrastructure/storage"
)

// fakeCompleter 按调用顺序返回脚本化的响应
type fakeCompleter struct {
	mu       sync.Mutex
	requests []*llm.ChatCompletionRequest
	streams  []func(ctx context.Context) (io.ReadCloser, error)
	replies  []func(ctx context.Context) (*llm.ChatCompletionResponse, error)
}

func (f *fakeCompleter) OpenStream(ctx context.Context, req *llm.ChatCompletionRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	if len(f.streams) == 0 {
		f.mu.Unlock()
		panic("unexpected OpenStream call")
	}
	next := f.streams[0]
	f.streams = f.streams[1:]
	f.mu.Unlock()
	return next(ctx)
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	next := f.replies[0]
	f.replies = f.replies[1:]
	f.mu.Unlock()
	return next(ctx)
}

func (f *fakeCompleter) stream(body string) *fakeCompleter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	})
	return f
}

func (f *fakeCompleter) streamFunc(fn func(ctx context.Context) (io.ReadCloser, error)) *fakeCompleter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, fn)
	return f
}

func (f *fakeCompleter) reply(fn func(ctx context.Context) (*llm.ChatCompletionResponse, error)) *fakeCompleter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fn)
	return f
}

func (f *fakeCompleter) request(i int) *llm.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// recorder 订阅全部对话事件
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecorder(bus events.EventBus) *recorder {
	r := &recorder{}
	bus.SubscribeMultiple(events.AllChatEvents, events.HandlerFunc(func(ev events.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		return nil
	}))
	return r
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) types() []events.EventType {
	var out []events.EventType
	for _, ev := range r.snapshot() {
		out = append(out, ev.Type())
	}
	return out
}

// waitTerminal 等待第 n 个 complete/error 事件
func (r *recorder) waitTerminal(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		count := 0
		for _, ev := range r.snapshot() {
			if ev.Type().IsTerminal() {
				count++
			}
		}
		return count >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func (r *recorder) streaming() []*events.StreamingEvent {
	var out []*events.StreamingEvent
	for _, ev := range r.snapshot() {
		if s, ok := ev.(*events.StreamingEvent); ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *recorder) last(typ events.EventType) events.Event {
	evs := r.snapshot()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type() == typ {
			return evs[i]
		}
	}
	return nil
}

type fixture struct {
	session   *Session
	completer *fakeCompleter
	repo      *storage.MemoryRepository
	rec       *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	fc := &fakeCompleter{}
	repo := storage.NewMemoryRepository()
	rec := newRecorder(bus)
	if opts.Model == "" {
		opts.Model = "test-model"
	}
	return &fixture{
		session:   NewSession("conv-1", fc, repo, bus, opts),
		completer: fc,
		repo:      repo,
		rec:       rec,
	}
}

func streamingOpts() Options {
	return Options{Stream: true}
}

func delta(s string) string {
	return `data: {"choices":[{"delta":{"content":"` + s + `"}}]}` + "\n\n"
}

const done = "data: [DONE]\n\n"

func roles(history []*domainChat.Message) []domainChat.Role {
	out := make([]domainChat.Role, 0, len(history))
	for _, m := range history {
		out = append(out, m.Role)
	}
	return out
}
