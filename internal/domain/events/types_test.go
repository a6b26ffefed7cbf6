package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_ShortName(t *testing.T) {
	assert.Equal(t, "streaming", ChatStreaming.ShortName())
	assert.Equal(t, "sources_updated", ChatSourcesUpdated.ShortName())
	assert.Equal(t, "custom", EventType("custom").ShortName())
}

func TestEventType_IsTerminal(t *testing.T) {
	assert.True(t, ChatComplete.IsTerminal())
	assert.True(t, ChatError.IsTerminal())
	assert.False(t, ChatCancelled.IsTerminal())
	assert.False(t, ChatStreaming.IsTerminal())
}

func TestNewEnvelope(t *testing.T) {
	ev := &StreamingEvent{ChatMeta: NewChatMeta("conv-1", "msg-1"), Delta: "he", Accumulated: "he"}

	raw, err := json.Marshal(NewEnvelope(ev))
	require.NoError(t, err)

	var decoded struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "streaming", decoded.Type)
	assert.Equal(t, "he", decoded.Data["accumulated"])
	assert.Equal(t, "conv-1", ev.Conversation())
}

func TestForConversation(t *testing.T) {
	var got []string
	h := ForConversation("conv-1", HandlerFunc(func(ev Event) error {
		got = append(got, ev.(ConversationEvent).Conversation())
		return nil
	}))

	require.NoError(t, h.HandleEvent(&ProcessingEvent{ChatMeta: NewChatMeta("conv-1", "")}))
	require.NoError(t, h.HandleEvent(&ProcessingEvent{ChatMeta: NewChatMeta("conv-2", "")}))
	assert.Equal(t, []string{"conv-1"}, got)
}
