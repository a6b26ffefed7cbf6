package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/streamchat/backend/internal/domain/chat"
	"github.com/streamchat/backend/internal/infrastructure/llm"
)

func TestBuildRequest(t *testing.T) {
	temp := 0.2
	opts := Options{
		Model:        "m",
		SystemPrompt: "be brief",
		Stream:       true,
		WebSearch:    true,
		Temperature:  &temp,
		MaxTokens:    256,
	}
	cancelled := domainChat.NewAssistantPlaceholder()
	cancelled.Status = domainChat.StatusCancelled
	history := []*domainChat.Message{
		domainChat.NewUserMessage("one", domainChat.Attachments{}),
		cancelled,
		domainChat.NewUserMessage("two", domainChat.Attachments{}),
	}

	req := BuildRequest(opts, history)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content.Text)
	assert.Equal(t, "one", req.Messages[1].Content.Text)
	assert.Equal(t, "two", req.Messages[2].Content.Text)
	assert.True(t, req.Stream)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 256, *req.MaxTokens)
	assert.Equal(t, &temp, req.Temperature)
	assert.Equal(t, []llm.Plugin{llm.WebSearchPlugin}, req.Plugins)
}

func TestBuildRequest_NoOptionalFields(t *testing.T) {
	req := BuildRequest(Options{Model: "m"}, []*domainChat.Message{
		domainChat.NewUserMessage("hi", domainChat.Attachments{}),
	})
	assert.Nil(t, req.StreamOptions)
	assert.Nil(t, req.MaxTokens)
	assert.Empty(t, req.Plugins)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plugins")
	assert.NotContains(t, string(raw), "max_tokens")
	assert.Contains(t, string(raw), `"content":"hi"`)
}

func TestBuildRequest_Attachments(t *testing.T) {
	msg := domainChat.NewUserMessage("look", domainChat.Attachments{
		Images:    []domainChat.ImageAttachment{{MimeType: "image/png", Data: "iVBOR"}},
		Documents: []domainChat.DocumentAttachment{{Filename: "notes.pdf", Data: "JVBER"}},
	})

	req := BuildRequest(Options{Model: "m"}, []*domainChat.Message{msg})
	parts := req.Messages[0].Content.Parts
	require.Len(t, parts, 3)
	assert.Equal(t, llm.PartText, parts[0].Type)
	assert.Equal(t, "look", parts[0].Text)
	assert.Equal(t, llm.PartImageURL, parts[1].Type)
	assert.Equal(t, "data:image/png;base64,iVBOR", parts[1].ImageURL.URL)
	assert.Equal(t, llm.PartFile, parts[2].Type)
	assert.Equal(t, "notes.pdf", parts[2].File.Filename)
	assert.Equal(t, "data:application/pdf;base64,JVBER", parts[2].File.FileData)
}

func TestDocumentDataURL(t *testing.T) {
	assert.Equal(t, "data:text/plain;base64,aGk=", documentDataURL(domainChat.DocumentAttachment{Filename: "a.TXT", Data: "aGk="}))
	assert.Equal(t, "data:application/octet-stream;base64,AA", documentDataURL(domainChat.DocumentAttachment{Filename: "blob", Data: "AA"}))
	assert.Equal(t, "data:x/y;base64,AA", documentDataURL(domainChat.DocumentAttachment{Filename: "a.bin", Data: "data:x/y;base64,AA"}))
}
