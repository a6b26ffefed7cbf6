// Package eventbus 提供按订阅者保序的进程内事件总线
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// subscription 一个订阅者及其邮箱
// 每个订阅者一个投递 goroutine，邮箱无界，发布方永不阻塞
type subscription struct {
	types   map[events.EventType]struct{}
	handler events.Handler

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []events.Event
	stopped bool
}

func newSubscription(types []events.EventType, handler events.Handler) *subscription {
	s := &subscription{
		types:   make(map[events.EventType]struct{}, len(types)),
		handler: handler,
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscription) enqueue(event events.Event) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, event)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// stop drain=true 时先投递完已入队事件
func (s *subscription) stop(drain bool) {
	s.mu.Lock()
	s.stopped = true
	if !drain {
		s.queue = nil
	}
	s.cond.Signal()
	s.mu.Unlock()
}

// next 阻塞直到有事件或已停止且队列为空
func (s *subscription) next() (events.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	ev := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return ev, true
}

// Bus EventBus 的实现
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

var _ events.EventBus = (*Bus)(nil)

// New 创建新的事件总线实例
func New() *Bus {
	return &Bus{
		subs:   make(map[*subscription]struct{}),
		logger: log.NewModuleLogger("eventbus", "bus"),
	}
}

// NewEventBus 以接口形式返回，供依赖注入使用
func NewEventBus() events.EventBus {
	return New()
}

// Subscribe 订阅特定类型的事件
func (b *Bus) Subscribe(eventType events.EventType, handler events.Handler) func() {
	return b.SubscribeMultiple([]events.EventType{eventType}, handler)
}

// SubscribeMultiple 订阅多个类型的事件，投递顺序与发布顺序一致
func (b *Bus) SubscribeMultiple(eventTypes []events.EventType, handler events.Handler) func() {
	sub := newSubscription(eventTypes, handler)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.deliver(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			sub.stop(false)
		})
	}
}

// Publish 发布事件
func (b *Bus) Publish(event events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	n := 0
	for sub := range b.subs {
		if _, ok := sub.types[event.Type()]; ok {
			sub.enqueue(event)
			n++
		}
	}

	if n > 0 {
		b.logger.Debug("Publishing event",
			"type", event.Type(),
			"handlers_count", n,
		)
	}
}

func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()
	for {
		ev, ok := sub.next()
		if !ok {
			return
		}
		b.dispatch(sub, ev)
	}
}

// dispatch 分发事件到单个处理器
func (b *Bus) dispatch(sub *subscription, event events.Event) {
	// 捕获 panic，防止单个处理器崩溃影响后续投递
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked",
				"type", event.Type(),
				"panic", r,
			)
		}
	}()

	if err := sub.handler.HandleEvent(event); err != nil {
		b.logger.Error("Handler returned error",
			"type", event.Type(),
			"error", err,
		)
	}
}

// SubscriberCount 当前订阅者数量
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close 关闭事件总线，等待已入队事件投递完成
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*subscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop(true)
	}
	b.wg.Wait()

	b.logger.Info("Event bus closed")
}
