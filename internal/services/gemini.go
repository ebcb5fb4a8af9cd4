package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini provides an implementation of the LLM interface for Google's Gemini models.
type Gemini struct {
	client *genai.Client
	model  string
	params LLMParameters
}

// NewGemini creates a Gemini client authenticated with apiKey. opts are appended to the client options, for
// example to point the client at another endpoint.
func NewGemini(ctx context.Context, apiKey, model string, params LLMParameters, opts ...option.ClientOption) (Gemini, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return Gemini{}, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return Gemini{client: client, model: model, params: params}, nil
}

// Close releases the underlying connection.
func (g Gemini) Close() error {
	return g.client.Close()
}

func geminiContent(msg models.Message) *genai.Content {
	role := "user"
	if msg.Role == models.RoleAssistant {
		role = "model"
	}
	return &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Text)}}
}

// Chat streams a reply for the last message, replaying the earlier ones as chat history.
func (g Gemini) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := g.client.GenerativeModel(g.model)
		if g.params.Temperature != nil {
			model.SetTemperature(*g.params.Temperature)
		}
		if g.params.TopP != nil {
			model.SetTopP(*g.params.TopP)
		}
		if g.params.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(g.params.MaxTokens))
		}

		systemMessage, ms := extractSystemMessage(messages)
		if systemMessage != "" {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemMessage)}}
		}
		if len(ms) == 0 {
			yield("", errors.New("no message to send"))
			return
		}

		cs := model.StartChat()
		for _, msg := range ms[:len(ms)-1] {
			cs.History = append(cs.History, geminiContent(msg))
		}

		it := cs.SendMessageStream(ctx, genai.Text(ms[len(ms)-1].Text))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			var sb strings.Builder
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok {
						sb.WriteString(string(text))
					}
				}
				break
			}
			if sb.Len() == 0 {
				continue
			}
			if !yield(sb.String(), nil) {
				return
			}
		}
	}
}
