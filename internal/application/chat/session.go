// Package chat 对话会话状态机：历史、单请求约束、流式折叠与生命周期通知
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/domain/events"
	"github.com/streamchat/backend/internal/infrastructure/llm"
	"github.com/streamchat/backend/internal/infrastructure/log"
	"github.com/streamchat/backend/internal/infrastructure/sse"
)

// persistTimeout 轮次结束后保存历史的超时
const persistTimeout = 5 * time.Second

// Session 单个会话
// 同一时刻最多一轮请求；所有对外发布的数据都是副本
type Session struct {
	id        string
	completer Completer
	repo      domainChat.TurnRepository
	bus       events.EventBus
	logger    *slog.Logger

	mu       sync.Mutex
	opts     Options
	history  *domainChat.History
	inFlight bool
	cancel   context.CancelFunc
	seq      uint64

	// persistMu 保证旧快照不会覆盖新快照
	persistMu     sync.Mutex
	persistedSeq  uint64
	streamOptions []sse.Option
}

// NewSession 创建会话，repo 与 bus 可以为 nil
func NewSession(id string, completer Completer, repo domainChat.TurnRepository, bus events.EventBus, opts Options) *Session {
	return &Session{
		id:        id,
		completer: completer,
		repo:      repo,
		bus:       bus,
		opts:      opts,
		history:   domainChat.NewHistory(nil),
		logger:    log.NewModuleLogger("chat", "session").With("conversation_id", id),
	}
}

// RestoreSession 以已保存的历史创建会话
func RestoreSession(id string, completer Completer, repo domainChat.TurnRepository, bus events.EventBus, opts Options, history []*domainChat.Message) *Session {
	s := NewSession(id, completer, repo, bus, opts)
	s.history = domainChat.NewHistory(history)
	return s
}

// WithStreamOptions 设置解码选项（读取块大小等）
func (s *Session) WithStreamOptions(opts ...sse.Option) *Session {
	s.streamOptions = append(s.streamOptions, opts...)
	return s
}

// ID 会话 ID
func (s *Session) ID() string {
	return s.id
}

// History 历史快照
func (s *Session) History() []*domainChat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Snapshot()
}

// IsLoading 是否有请求在进行中
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Options 当前参数
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// UpdateOptions 修改参数，对下一轮生效
func (s *Session) UpdateOptions(fn func(*Options)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.opts)
}

// Send 发送一条用户消息并等待本轮结束
// 正常完成与取消都返回助手消息副本；失败返回 *domainChat.TurnError
func (s *Session) Send(ctx context.Context, text string, attachments domainChat.Attachments) (*domainChat.Message, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, domainChat.ErrAlreadyInProgress
	}
	if strings.TrimSpace(text) == "" && attachments.IsEmpty() {
		s.mu.Unlock()
		return nil, domainChat.ErrEmptyMessage
	}
	s.history.Append(domainChat.NewUserMessage(text, attachments))
	return s.runTurnLocked(ctx)
}

// Regenerate 以最后一条用户消息重新请求，丢弃它之后的回复
// 上一轮失败时最后一条用户消息没有回复，直接重试它
func (s *Session) Regenerate(ctx context.Context) (*domainChat.Message, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, domainChat.ErrAlreadyInProgress
	}

	userIdx := s.history.LastIndexOfRole(domainChat.RoleUser)
	if s.history.LastIndexOfRole(domainChat.RoleAssistant) < 0 || userIdx < 0 {
		s.mu.Unlock()
		return nil, domainChat.ErrNothingToRegenerate
	}

	user := s.history.At(userIdx)
	text, attachments := user.Content, user.Attachments.Clone()
	s.history.TruncateBefore(userIdx)
	resent := domainChat.NewUserMessage(text, attachments)
	s.history.Append(resent)
	s.logger.Debug("Regenerating assistant reply",
		"from_message_id", user.ID,
		"user_message_id", resent.ID,
	)
	return s.runTurnLocked(ctx)
}

// EditAndResend 截断到目标用户消息之前，以新文本重新发送，附件沿用原消息
func (s *Session) EditAndResend(ctx context.Context, messageID, newText string) (*domainChat.Message, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, domainChat.ErrAlreadyInProgress
	}

	idx := s.history.IndexOf(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, domainChat.ErrMessageNotFound
	}
	target := s.history.At(idx)
	if target.Role != domainChat.RoleUser {
		s.mu.Unlock()
		return nil, domainChat.ErrNotEditable
	}
	if strings.TrimSpace(newText) == "" && target.Attachments.IsEmpty() {
		s.mu.Unlock()
		return nil, domainChat.ErrEmptyMessage
	}

	attachments := target.Attachments.Clone()
	s.history.TruncateBefore(idx)
	s.history.Append(domainChat.NewUserMessage(newText, attachments))
	return s.runTurnLocked(ctx)
}

// Cancel 中止进行中的请求，空闲时返回 false
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// turn 一轮请求的上下文
type turn struct {
	id          string
	ctx         context.Context
	req         *llm.ChatCompletionRequest
	opts        Options
	placeholder *domainChat.Message
	logger      *slog.Logger
}

// meta 事件公共字段，带上本轮 ID
func (t *turn) meta(conversationID, messageID string) events.ChatMeta {
	m := events.NewChatMeta(conversationID, messageID)
	m.TurnID = t.id
	return m
}

type turnStartedKey struct{}

// WithTurnStarted 本轮通过前置检查后以轮次 ID 回调 fn
// 回调发生在本轮发布任何事件之前，且在会话锁内执行，fn 不能阻塞
func WithTurnStarted(ctx context.Context, fn func(turnID string)) context.Context {
	return context.WithValue(ctx, turnStartedKey{}, fn)
}

// runTurnLocked 调用时必须持有 s.mu，函数内部释放
func (s *Session) runTurnLocked(ctx context.Context) (*domainChat.Message, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.cancel = cancel

	t := &turn{
		id:   uuid.New().String(),
		opts: s.opts,
	}
	t.req = BuildRequest(t.opts, s.history.Messages())
	t.ctx = log.WithTurnID(log.WithConversationID(turnCtx, s.id), t.id)
	t.logger = log.FromContext(t.ctx, log.NewModuleLogger("chat", "session"))

	if t.opts.Stream {
		t.placeholder = domainChat.NewAssistantPlaceholder()
		s.history.Append(t.placeholder)
	}
	if fn, ok := ctx.Value(turnStartedKey{}).(func(string)); ok && fn != nil {
		fn(t.id)
	}
	s.mu.Unlock()

	// 兜底：任何路径返回后都释放 context
	defer cancel()

	t.logger.Info("Turn started",
		"model", t.opts.Model,
		"stream", t.opts.Stream,
		"messages", len(t.req.Messages),
	)

	if t.opts.Stream {
		return s.runStreaming(t)
	}
	return s.runBlocking(t)
}

func (s *Session) runStreaming(t *turn) (*domainChat.Message, error) {
	s.publish(&events.ProcessingEvent{ChatMeta: t.meta(s.id, t.placeholder.ID)})

	body, err := s.completer.OpenStream(t.ctx, t.req)
	if err != nil {
		if t.ctx.Err() != nil {
			return s.finishCancelled(t, nil)
		}
		return s.finishFailed(t, transportError(err))
	}
	defer func() { _ = body.Close() }()

	s.mu.Lock()
	t.placeholder.Status = domainChat.StatusStreaming
	s.mu.Unlock()

	var (
		usage        *domainChat.Usage
		finishReason string
	)
	opts := append([]sse.Option{sse.WithLogger(t.logger)}, s.streamOptions...)
	for ev := range sse.Stream(t.ctx, body, opts...) {
		switch ev.Kind {
		case sse.KindContentDelta:
			s.mu.Lock()
			t.placeholder.Content += ev.Text
			accumulated := t.placeholder.Content
			s.mu.Unlock()
			s.publish(&events.StreamingEvent{
				ChatMeta:    t.meta(s.id, t.placeholder.ID),
				Delta:       ev.Text,
				Accumulated: accumulated,
			})

		case sse.KindAnnotationDelta:
			s.mu.Lock()
			added := t.placeholder.AddSource(ev.Citation)
			sources := append([]domainChat.Citation(nil), t.placeholder.Sources...)
			s.mu.Unlock()
			if added {
				s.publish(&events.SourcesUpdatedEvent{
					ChatMeta: t.meta(s.id, t.placeholder.ID),
					Sources:  sources,
				})
			}

		case sse.KindUsageDelta:
			u := ev.Usage
			usage = &u

		case sse.KindFinishSignal:
			finishReason = ev.Reason

		case sse.KindProcessing:
			s.publish(&events.ProcessingEvent{
				ChatMeta: t.meta(s.id, t.placeholder.ID),
				Comment:  ev.Comment,
			})

		case sse.KindStreamEnd:
			return s.finishCompleted(t, usage, finishReason)

		case sse.KindCancelled:
			return s.finishCancelled(t, usage)

		case sse.KindErrorSignal:
			return s.finishFailed(t, &domainChat.TurnError{
				Kind:    domainChat.MidStreamError,
				Code:    ev.Code,
				Message: ev.Message,
			})

		case sse.KindTransportError:
			return s.finishFailed(t, &domainChat.TurnError{
				Kind:    domainChat.TransportError,
				Message: ev.Err.Error(),
				Err:     ev.Err,
			})
		}
	}

	// 取消时缓冲已满，通道可能在没有终止事件的情况下关闭
	if t.ctx.Err() != nil {
		return s.finishCancelled(t, usage)
	}
	return s.finishCompleted(t, usage, finishReason)
}

// runBlocking 非流式：成功时只发布 complete
func (s *Session) runBlocking(t *turn) (*domainChat.Message, error) {
	resp, err := s.completer.CreateChatCompletion(t.ctx, t.req)
	if err != nil {
		if t.ctx.Err() != nil {
			t.placeholder = domainChat.NewAssistantPlaceholder()
			s.mu.Lock()
			s.history.Append(t.placeholder)
			s.mu.Unlock()
			return s.finishCancelled(t, nil)
		}
		return s.finishFailed(t, transportError(err))
	}
	if len(resp.Choices) == 0 {
		return s.finishFailed(t, transportError(errors.New("LLM API returned no choices")))
	}

	choice := resp.Choices[0]
	msg := domainChat.NewAssistantMessage(choice.Message.Content.Text)
	for _, ann := range choice.Message.Annotations {
		if ann.Type == "url_citation" && ann.URLCitation != nil && ann.URLCitation.URL != "" {
			msg.AddSource(ann.URLCitation.Citation())
		}
	}
	if resp.Usage != nil {
		msg.Usage = &domainChat.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	t.placeholder = msg
	s.mu.Lock()
	s.history.Append(msg)
	s.mu.Unlock()
	return s.finishCompleted(t, msg.Usage, choice.FinishReason)
}

// finishCompleted 正常结束
func (s *Session) finishCompleted(t *turn, usage *domainChat.Usage, finishReason string) (*domainChat.Message, error) {
	msg, snap, seq := s.finalize(t, domainChat.StatusComplete, usage)
	s.persist(t, snap, seq)

	t.logger.Info("Turn complete",
		"finish_reason", finishReason,
		"content_length", len(msg.Content),
		"sources", len(msg.Sources),
	)
	s.publish(&events.CompleteEvent{
		ChatMeta:     t.meta(s.id, msg.ID),
		Content:      msg.Content,
		Sources:      msg.Sources,
		Usage:        msg.Usage,
		FinishReason: finishReason,
	})
	return msg, nil
}

// finishCancelled 保留已收到的部分内容
func (s *Session) finishCancelled(t *turn, usage *domainChat.Usage) (*domainChat.Message, error) {
	msg, snap, seq := s.finalize(t, domainChat.StatusCancelled, usage)
	s.persist(t, snap, seq)

	t.logger.Info("Turn cancelled", "partial_length", len(msg.Content))
	meta := t.meta(s.id, msg.ID)
	s.publish(&events.CancelledEvent{ChatMeta: meta, PartialContent: msg.Content})
	s.publish(&events.CompleteEvent{
		ChatMeta:  meta,
		Content:   msg.Content,
		Sources:   msg.Sources,
		Usage:     msg.Usage,
		Cancelled: true,
	})
	return msg, nil
}

// finishFailed 移除占位消息，保留用户消息
func (s *Session) finishFailed(t *turn, turnErr *domainChat.TurnError) (*domainChat.Message, error) {
	s.mu.Lock()
	if t.placeholder != nil {
		s.history.Remove(t.placeholder.ID)
	}
	snap, seq := s.endTurnLocked()
	s.mu.Unlock()
	s.persist(t, snap, seq)

	t.logger.Warn("Turn failed",
		"kind", turnErr.Kind,
		"code", turnErr.Code,
		"error", turnErr.Message,
	)
	messageID := ""
	if t.placeholder != nil {
		messageID = t.placeholder.ID
	}
	s.publish(&events.ErrorEvent{
		ChatMeta: t.meta(s.id, messageID),
		Message:  turnErr.Message,
		Code:     turnErr.Code,
		Kind:     string(turnErr.Kind),
	})
	return nil, turnErr
}

// finalize 写入终态与用量，结束本轮并返回消息副本与历史快照
func (s *Session) finalize(t *turn, status domainChat.Status, usage *domainChat.Usage) (*domainChat.Message, []*domainChat.Message, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := t.placeholder
	m.Status = status
	switch {
	case usage != nil:
		u := *usage
		m.Usage = &u
	case t.opts.Tokens != nil:
		u := t.opts.Tokens.EstimateUsage(promptTexts(t.req), m.Content)
		m.Usage = &u
	}

	snap, seq := s.endTurnLocked()
	return m.Clone(), snap, seq
}

// endTurnLocked 回到空闲状态，在发布终止事件之前调用
func (s *Session) endTurnLocked() ([]*domainChat.Message, uint64) {
	s.inFlight = false
	s.cancel = nil
	s.seq++
	return s.history.Snapshot(), s.seq
}

// persist 保存失败只记录日志，不影响内存中的结果
func (s *Session) persist(t *turn, snap []*domainChat.Message, seq uint64) {
	if s.repo == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.persistedSeq {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), persistTimeout)
	defer cancel()

	turnID, err := s.repo.PersistTurn(ctx, s.id, snap)
	if err != nil {
		t.logger.Error("Failed to persist turn", "error", err)
		return
	}
	s.persistedSeq = seq
	t.logger.Debug("Turn persisted", "persisted_turn_id", turnID, "messages", len(snap))
}

func (s *Session) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// transportError 将请求失败映射为 TurnError
func transportError(err error) *domainChat.TurnError {
	te := &domainChat.TurnError{Kind: domainChat.TransportError, Message: err.Error(), Err: err}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		te.Code = apiErr.Code
		te.Message = apiErr.Message
	}
	return te
}
