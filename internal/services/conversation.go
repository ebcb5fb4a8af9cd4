package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/google/uuid"
	"github.com/tiktoken-go/tokenizer"
)

// LLM represents a large language model that streams a reply for a sequence of messages. The first message
// may have the system role.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// MessageStore keeps conversation messages addressable by id.
type MessageStore interface {
	Message(ctx context.Context, id string) (models.Message, error)
	AddMessage(ctx context.Context, message models.Message) error
}

var (
	// ErrMessageNotFound is returned by stores for an unknown message id.
	ErrMessageNotFound = errors.New("message not found")
	// ErrEmptyReply is returned when the model produced no text.
	ErrEmptyReply = errors.New("empty reply from llm")
)

// DefaultContextTokens is the token budget of the history sent along with a new message.
const DefaultContextTokens = 3000

// messageTokenOverhead approximates the per-message framing tokens chat models add around the content.
const messageTokenOverhead = 4

// Conversation threads messages on top of a stateless LLM. Every message is stored with the id of the
// message it answers, so a client only needs the last reply id to continue a conversation.
type Conversation struct {
	llm          LLM
	store        MessageStore
	systemPrompt string

	contextTokens int
	codec         tokenizer.Codec

	logger *slog.Logger
}

// NewConversation creates a Conversation. contextTokens bounds the history replayed to the model; zero
// means DefaultContextTokens.
func NewConversation(
	llm LLM,
	store MessageStore,
	systemPrompt string,
	contextTokens int,
	logger *slog.Logger,
) (Conversation, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return Conversation{}, fmt.Errorf("error creating tokenizer: %w", err)
	}
	if contextTokens <= 0 {
		contextTokens = DefaultContextTokens
	}

	return Conversation{
		llm:           llm,
		store:         store,
		systemPrompt:  systemPrompt,
		contextTokens: contextTokens,
		codec:         codec,
		logger:        logger.With(slog.String("module", "conversation")),
	}, nil
}

// SendMessage stores text as a reply to opts.ParentMessageID, asks the model for an answer with as much of
// the thread as fits the token budget, stores the answer and returns it. A missing conversation id is taken
// from the parent message, or freshly generated when there is none.
func (c Conversation) SendMessage(ctx context.Context, text string, opts models.SendOptions) (models.Reply, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	userMsg := models.Message{
		ID:             uuid.New().String(),
		Role:           models.RoleUser,
		Text:           text,
		ParentID:       opts.ParentMessageID,
		ConversationID: opts.ConversationID,
		Timestamp:      time.Now(),
	}

	history, err := c.history(ctx, userMsg)
	if err != nil {
		return models.Reply{}, err
	}
	if userMsg.ConversationID == "" {
		userMsg.ConversationID = uuid.New().String()
		for _, m := range history {
			if m.ConversationID != "" {
				userMsg.ConversationID = m.ConversationID
				break
			}
		}
	}

	if err := c.store.AddMessage(ctx, userMsg); err != nil {
		return models.Reply{}, fmt.Errorf("failed to add user message: %w", err)
	}

	messages := append(history, userMsg)
	if c.systemPrompt != "" {
		messages = slices.Insert(messages, 0, models.Message{Role: models.RoleSystem, Text: c.systemPrompt})
	}

	c.logger.Debug("Sending message",
		slog.String("conversationID", userMsg.ConversationID),
		slog.String("parentID", userMsg.ParentID),
		slog.Int("contextMessages", len(messages)))

	var sb strings.Builder
	for chunk, err := range c.llm.Chat(ctx, messages) {
		if err != nil {
			return models.Reply{}, fmt.Errorf("error from llm provider: %w", err)
		}
		sb.WriteString(chunk)
	}
	// Providers stop silently on cancellation, so a truncated stream has to be detected here.
	if err := ctx.Err(); err != nil {
		return models.Reply{}, fmt.Errorf("llm stream interrupted: %w", err)
	}

	replyText := strings.TrimSpace(sb.String())
	if replyText == "" {
		return models.Reply{}, ErrEmptyReply
	}

	aiMsg := models.Message{
		ID:             uuid.New().String(),
		Role:           models.RoleAssistant,
		Text:           replyText,
		ParentID:       userMsg.ID,
		ConversationID: userMsg.ConversationID,
		Timestamp:      time.Now(),
	}
	if err := c.store.AddMessage(ctx, aiMsg); err != nil {
		return models.Reply{}, fmt.Errorf("failed to add ai message: %w", err)
	}

	return models.Reply{
		ID:              aiMsg.ID,
		ConversationID:  aiMsg.ConversationID,
		ParentMessageID: aiMsg.ParentID,
		Text:            aiMsg.Text,
	}, nil
}

// history walks the parent chain of msg, newest first, until the token budget is spent, and returns the
// collected messages oldest first, starting with a user message. An unknown parent ends the chain.
func (c Conversation) history(ctx context.Context, msg models.Message) ([]models.Message, error) {
	budget := c.contextTokens - c.tokens(c.systemPrompt) - c.tokens(msg.Text)

	var chain []models.Message
	seen := map[string]bool{msg.ID: true}
	for parentID := msg.ParentID; parentID != "" && !seen[parentID]; {
		seen[parentID] = true

		parent, err := c.store.Message(ctx, parentID)
		if errors.Is(err, ErrMessageNotFound) {
			c.logger.Warn("Parent message not found, starting from here", slog.String("parentID", parentID))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", parentID, err)
		}

		cost := c.tokens(parent.Text)
		if cost > budget {
			break
		}
		budget -= cost
		chain = append(chain, parent)
		parentID = parent.ParentID
	}

	slices.Reverse(chain)

	// The replayed thread must open with a user turn.
	for len(chain) > 0 && chain[0].Role != models.RoleUser {
		chain = chain[1:]
	}
	return chain, nil
}

func (c Conversation) tokens(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		// Rough fallback of four characters per token.
		return len(text)/4 + messageTokenOverhead
	}
	return len(ids) + messageTokenOverhead
}
