package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// Message represents an individual entry of a conversation thread as kept by the conversational API. Each
// message points at the message it answers through ParentID, so any message id is enough to rebuild the
// context that led to it.
type Message struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	ParentID       string    `json:"parentId,omitempty"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleSystem is the instruction message prepended to every request sent to a model. It is never stored.
	RoleSystem Role = "system"
	// RoleUser represents a message written by the human.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the model.
	RoleAssistant Role = "assistant"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle("monokai")),
	),
)

// RenderMarkdown renders a model reply, which is usually markdown, into HTML for the browser page.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
