package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamchat/backend/internal/domain/events"
)

func streaming(delta string) *events.StreamingEvent {
	return &events.StreamingEvent{
		ChatMeta: events.NewChatMeta("conv-1", "msg-1"),
		Delta:    delta,
	}
}

func TestBus_Subscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	var received atomic.Bool
	unsub := bus.Subscribe(events.ChatStreaming, events.HandlerFunc(func(event events.Event) error {
		received.Store(true)
		return nil
	}))
	defer unsub()

	bus.Publish(streaming("hi"))

	assert.Eventually(t, received.Load, time.Second, 5*time.Millisecond)
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	var got []string
	bus.Subscribe(events.ChatStreaming, events.HandlerFunc(func(event events.Event) error {
		// 慢处理器也必须按顺序收到
		time.Sleep(time.Microsecond)
		mu.Lock()
		got = append(got, event.(*events.StreamingEvent).Delta)
		mu.Unlock()
		return nil
	}))

	var want []string
	for i := 0; i < 200; i++ {
		d := string(rune('a' + i%26))
		want = append(want, d)
		bus.Publish(streaming(d))
	}

	// Close 会等待队列清空
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestBus_SubscribeMultipleKeepsCrossTypeOrder(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	var got []events.EventType
	bus.SubscribeMultiple(events.AllChatEvents, events.HandlerFunc(func(event events.Event) error {
		mu.Lock()
		got = append(got, event.Type())
		mu.Unlock()
		return nil
	}))

	meta := events.NewChatMeta("conv-1", "msg-1")
	bus.Publish(&events.ProcessingEvent{ChatMeta: meta})
	bus.Publish(&events.StreamingEvent{ChatMeta: meta, Delta: "x"})
	bus.Publish(&events.SourcesUpdatedEvent{ChatMeta: meta})
	bus.Publish(&events.CompleteEvent{ChatMeta: meta})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{
		events.ChatProcessing,
		events.ChatStreaming,
		events.ChatSourcesUpdated,
		events.ChatComplete,
	}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count atomic.Int32
	unsub := bus.Subscribe(events.ChatStreaming, events.HandlerFunc(func(event events.Event) error {
		count.Add(1)
		return nil
	}))
	require.Equal(t, 1, bus.SubscriberCount())

	unsub()
	unsub()
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(streaming("ignored"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestBus_FiltersByType(t *testing.T) {
	bus := New()

	var count atomic.Int32
	bus.Subscribe(events.ChatComplete, events.HandlerFunc(func(event events.Event) error {
		count.Add(1)
		return nil
	}))

	bus.Publish(streaming("a"))
	bus.Publish(&events.CompleteEvent{ChatMeta: events.NewChatMeta("conv-1", "msg-1")})
	bus.Close()

	assert.Equal(t, int32(1), count.Load())
}

func TestBus_HandlerErrorAndPanicDoNotStopDelivery(t *testing.T) {
	bus := New()

	var count atomic.Int32
	bus.Subscribe(events.ChatStreaming, events.HandlerFunc(func(event events.Event) error {
		n := count.Add(1)
		switch n {
		case 1:
			return errors.New("handler failed")
		case 2:
			panic("handler panic")
		}
		return nil
	}))

	bus.Publish(streaming("1"))
	bus.Publish(streaming("2"))
	bus.Publish(streaming("3"))
	bus.Close()

	assert.Equal(t, int32(3), count.Load())
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New()
	bus.Close()
	bus.Close()

	unsub := bus.Subscribe(events.ChatStreaming, events.HandlerFunc(func(event events.Event) error {
		t.Fatal("should not be called")
		return nil
	}))
	unsub()

	bus.Publish(streaming("late"))
}
