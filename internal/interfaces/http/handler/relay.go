package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appChat "github.com/streamchat/backend/internal/application/chat"
	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/log"
)

// drainTimeout 轮次返回后等待终止事件送达的最长时间
const drainTimeout = 2 * time.Second

type turnFunc func(ctx context.Context) (*domainChat.Message, error)

type turnResult struct {
	msg *domainChat.Message
	err error
}

// wantsStream 显式参数优先，其次看 Accept 头
func wantsStream(c *gin.Context, stream *bool) bool {
	if stream != nil {
		return *stream
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// relay 订阅本会话事件，只把本轮的事件以 SSE 转发，直到终止事件
// 开始前就被拒绝的请求仍以普通 JSON 错误响应，不会收到其他轮次的事件
func (h *ConversationHandler) relay(c *gin.Context, conversationID string, run turnFunc) {
	ctx := c.Request.Context()
	logger := log.FromContext(ctx, h.logger)

	evCh := make(chan events.Event, 64)
	done := make(chan struct{})
	defer close(done)

	unsubscribe := h.bus.SubscribeMultiple(events.AllChatEvents, events.ForConversation(conversationID, events.HandlerFunc(func(ev events.Event) error {
		select {
		case evCh <- ev:
		case <-done:
		}
		return nil
	})))
	defer unsubscribe()

	// 本轮 ID 在发布任何事件之前写入
	turnCh := make(chan string, 1)
	turnCtx := appChat.WithTurnStarted(ctx, func(id string) { turnCh <- id })

	resCh := make(chan turnResult, 1)
	go func() {
		msg, err := run(turnCtx)
		resCh <- turnResult{msg: msg, err: err}
	}()

	var (
		turnID   string
		started  bool
		terminal bool
		res      *turnResult
		drain    <-chan time.Time
	)
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
	}

	for {
		if res != nil && terminal {
			return
		}
		select {
		case ev := <-evCh:
			if turnID == "" {
				select {
				case turnID = <-turnCh:
				default:
				}
			}
			if ce, ok := ev.(events.ConversationEvent); !ok || turnID == "" || ce.Turn() != turnID {
				continue
			}
			start()
			c.SSEvent(ev.Type().ShortName(), ev)
			c.Writer.Flush()
			if ev.Type().IsTerminal() {
				terminal = true
			}

		case r := <-resCh:
			res = &r
			if isRejection(r.err) {
				if !started {
					writeError(c, r.err)
					return
				}
				status, code := errorStatus(r.err)
				c.SSEvent("error", gin.H{"message": r.err.Error(), "status": status, "code": code})
				c.Writer.Flush()
				return
			}
			drain = time.After(drainTimeout)

		case <-drain:
			logger.Warn("Terminal event not delivered before drain timeout",
				"conversation_id", conversationID,
			)
			return

		case <-ctx.Done():
			logger.Debug("Client disconnected from event stream", "conversation_id", conversationID)
			// 等轮次以取消结束，避免 goroutine 晚于请求写入响应
			if res == nil {
				<-resCh
			}
			return
		}
	}
}
