package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/bytedance/sonic"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an interface to the Anthropic API for large language model interactions. It implements
// the LLM interface and handles streaming chat completions using Claude models.
type Anthropic struct {
	apiKey    string
	endpoint  string
	model     string
	maxTokens int

	client *http.Client
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicVersion     = "2023-06-01"
)

// NewAnthropic creates a new Anthropic instance with the specified API key, model name, and maximum
// token limit. An empty endpoint targets the public API.
func NewAnthropic(apiKey, endpoint, model string, maxTokens int) Anthropic {
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	return Anthropic{
		apiKey:    apiKey,
		endpoint:  endpoint,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

func extractSystemMessage(messages []models.Message) (string, []models.Message) {
	if len(messages) == 0 || messages[0].Role != models.RoleSystem {
		return "", messages
	}
	return messages[0].Text, messages[1:]
}

// anthropicMessages converts the thread into the alternating user/assistant sequence the Messages API
// requires. Consecutive turns of one role are joined.
func anthropicMessages(messages []models.Message) []anthropicMessage {
	msgs := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		role := string(msg.Role)
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n\n" + msg.Text
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: msg.Text})
	}
	return msgs
}

func (a Anthropic) newRequest(ctx context.Context, messages []models.Message) (*http.Request, error) {
	system, thread := extractSystemMessage(messages)

	body, err := sonic.Marshal(anthropicChatRequest{
		Model:     a.model,
		Messages:  anthropicMessages(thread),
		System:    system,
		MaxTokens: a.maxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	return req, nil
}

func anthropicStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var e anthropicError
	if err := sonic.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("anthropic error %s (status %d): %s", e.Error.Type, resp.StatusCode, e.Error.Message)
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// Chat streams responses from the Anthropic API for a given sequence of messages. The system message is sent
// in its dedicated field rather than as part of the conversation.
func (a Anthropic) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := a.newRequest(ctx, messages)
		if err != nil {
			yield("", err)
			return
		}

		resp, err := a.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", anthropicStatusError(resp))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}

			switch ev.Type {
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := sonic.UnmarshalString(ev.Data, &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			case "message_stop":
				return
			case "error":
				var e anthropicError
				if err := sonic.UnmarshalString(ev.Data, &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			}
		}
	}
}
