package services_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MegaGrindStone/talkback/internal/audio"
	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/MegaGrindStone/talkback/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, it func(func(string, error) bool)) (string, error) {
	t.Helper()
	var sb strings.Builder
	for chunk, err := range it {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}

func TestOpenAIChatStreams(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hi", " there"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	llm := services.NewOpenAI("key", srv.URL+"/v1", "gpt-4o-mini", services.LLMParameters{}, discardLogger())
	text, err := collect(t, llm.Chat(context.Background(), []models.Message{
		{Role: models.RoleSystem, Text: "Be brief."},
		{Role: models.RoleUser, Text: "Hello"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Contains(t, gotBody, `"model":"gpt-4o-mini"`)
	assert.Contains(t, gotBody, `"content":"Hello"`)
}

func TestOpenAIChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	llm := services.NewOpenAI("key", srv.URL+"/v1", "gpt-4o-mini", services.LLMParameters{}, discardLogger())
	_, err := collect(t, llm.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Text: "Hello"}}))
	assert.ErrorContains(t, err, "bad key")
}

func TestAnthropicChatStreams(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hello\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\" world\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	llm := services.NewAnthropic("secret", srv.URL, "claude", 256)
	text, err := collect(t, llm.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Text: "Hi"}}))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, "secret", gotKey)
}

func TestAnthropicChatErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	llm := services.NewAnthropic("secret", srv.URL, "claude", 256)
	_, err := collect(t, llm.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Text: "Hi"}}))
	assert.ErrorContains(t, err, "Overloaded")
}

func TestAnthropicChatRequest(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"ok\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	llm := services.NewAnthropic("secret", srv.URL, "claude", 256)
	_, err := collect(t, llm.Chat(context.Background(), []models.Message{
		{Role: models.RoleSystem, Text: "Be brief."},
		{Role: models.RoleUser, Text: "first"},
		{Role: models.RoleUser, Text: "second"},
		{Role: models.RoleAssistant, Text: "answer"},
		{Role: models.RoleUser, Text: "third"},
	}))
	require.NoError(t, err)

	assert.Contains(t, gotBody, `"system":"Be brief."`)
	assert.Contains(t, gotBody, `"max_tokens":256`)
	assert.Contains(t, gotBody, `{"role":"user","content":"first\n\nsecond"}`)
	assert.Equal(t, 2, strings.Count(gotBody, `"role":"user"`))
	assert.NotContains(t, gotBody, `"role":"system"`)
}

func TestAnthropicChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	llm := services.NewAnthropic("wrong", srv.URL, "claude", 256)
	_, err := collect(t, llm.Chat(context.Background(), []models.Message{{Role: models.RoleUser, Text: "Hi"}}))
	assert.ErrorContains(t, err, "invalid x-api-key")
	assert.ErrorContains(t, err, "status 401")
}

func TestOpenAISpeechFormats(t *testing.T) {
	pcm := make([]byte, 64)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	var gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotFormat = string(b)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	t.Run("pcm", func(t *testing.T) {
		s, err := services.NewOpenAISpeech("key", srv.URL+"/v1", "", audio.FormatPCM, discardLogger())
		require.NoError(t, err)

		p, err := s.Speak(context.Background(), "Hello", "nova")
		require.NoError(t, err)
		assert.Equal(t, audio.FormatPCM, p.Format)
		assert.Equal(t, 24000, p.SampleRate)
		assert.Equal(t, pcm, p.Data)
		assert.Contains(t, gotFormat, `"voice":"nova"`)
	})

	t.Run("mulaw is transcoded from pcm", func(t *testing.T) {
		s, err := services.NewOpenAISpeech("key", srv.URL+"/v1", "", audio.FormatMulaw, discardLogger())
		require.NoError(t, err)

		p, err := s.Speak(context.Background(), "Hello", "alloy")
		require.NoError(t, err)
		assert.Equal(t, audio.FormatMulaw, p.Format)
		assert.Len(t, p.Data, len(pcm)/2)
		assert.Contains(t, gotFormat, `"response_format":"pcm"`)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := services.NewOpenAISpeech("key", "", "", "ogg", discardLogger())
		assert.Error(t, err)
	})
}
