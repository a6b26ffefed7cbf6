package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// clientBuffer 单个连接的发送缓冲
const clientBuffer = 256

// Hub WebSocket 连接管理中心，按会话 ID 分组
type Hub struct {
	// 按会话分组的连接
	groups map[string]map[*Client]struct{}
	// 注册连接
	register chan *Client
	// 注销连接
	unregister chan *Client
	// 广播消息
	broadcast chan *Message
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	logger    *slog.Logger

	readBufferSize  int
	writeBufferSize int
}

// Client 一个订阅会话事件的连接
type Client struct {
	ConversationID string
	Send           chan []byte
}

// Message 待广播的消息
type Message struct {
	ConversationID string
	Data           []byte
}

// NewHub 创建 Hub
func NewHub(readBufferSize, writeBufferSize int) *Hub {
	return &Hub{
		groups:          make(map[string]map[*Client]struct{}),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *Message),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		readBufferSize:  readBufferSize,
		writeBufferSize: writeBufferSize,
		logger:          log.NewModuleLogger("websocket", "hub"),
	}
}

// NewClient 创建连接对象
func NewClient(conversationID string) *Client {
	return &Client{ConversationID: conversationID, Send: make(chan []byte, clientBuffer)}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for id, group := range h.groups {
				for c := range group {
					close(c.Send)
				}
				delete(h.groups, id)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.groups[c.ConversationID] == nil {
				h.groups[c.ConversationID] = make(map[*Client]struct{})
			}
			h.groups[c.ConversationID][c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.groups[msg.ConversationID] {
				select {
				case c.Send <- msg.Data:
				default:
					// 消费过慢的连接直接断开
					h.logger.Warn("Send buffer full, dropping client",
						"conversation_id", c.ConversationID,
					)
					h.removeLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(c *Client) {
	group, ok := h.groups[c.ConversationID]
	if !ok {
		return
	}
	if _, ok := group[c]; !ok {
		return
	}
	delete(group, c)
	close(c.Send)
	if len(group) == 0 {
		delete(h.groups, c.ConversationID)
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	h.startOnce.Do(func() { go h.Run() })
}

// Stop 停止 Hub 并关闭所有连接的发送通道
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.startOnce.Do(func() { close(h.done) })
	<-h.done
}

// Register 注册连接
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stop:
		close(c.Send)
	}
}

// Unregister 注销连接
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// Broadcast 向指定会话的所有连接广播
func (h *Hub) Broadcast(conversationID string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &Message{ConversationID: conversationID, Data: jsonData}:
	case <-h.stop:
	}
	return nil
}

// ClientCount 指定会话的连接数
func (h *Hub) ClientCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[conversationID])
}

// Attach 订阅事件总线，把对话事件转发给对应会话的连接
func (h *Hub) Attach(bus events.EventBus) (unsubscribe func()) {
	return bus.SubscribeMultiple(events.AllChatEvents, events.HandlerFunc(func(ev events.Event) error {
		ce, ok := ev.(events.ConversationEvent)
		if !ok {
			return nil
		}
		return h.Broadcast(ce.Conversation(), events.NewEnvelope(ev))
	}))
}
