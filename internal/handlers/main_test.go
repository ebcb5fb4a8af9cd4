package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/talkback/internal/handlers"
	"github.com/MegaGrindStone/talkback/internal/models"
)

type mockConversation struct {
	reply models.Reply
	err   error
	delay time.Duration

	calls   int
	gotText string
	gotOpts models.SendOptions
}

type mockSpeaker struct {
	payload models.VoicePayload
	err     error

	gotVoice string
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMain(t *testing.T, conv *mockConversation, speaker handlers.Speaker, cfg handlers.Config) http.Handler {
	t.Helper()

	main, err := handlers.NewMain(conv, speaker, cfg, newLogger())
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	t.Cleanup(func() { _ = main.Shutdown(context.Background()) })

	routes, err := main.Routes()
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	return routes
}

func TestHandleHome(t *testing.T) {
	routes := newMain(t, &mockConversation{}, nil, handlers.Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}

	for _, want := range []string{"AI is awaiting text...", `maxlength="300"`, "en-GB", `value="fable"`, "/static/app.js"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("HandleHome() body does not contain %q", want)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	routes := newMain(t, &mockConversation{}, nil, handlers.Config{})

	for _, path := range []string{"/static/app.js", "/static/style.css"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %v, want %v", path, w.Code, http.StatusOK)
		}
	}
}

func TestHandleVoices(t *testing.T) {
	routes := newMain(t, &mockConversation{}, nil, handlers.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/voices", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	var groups []struct {
		Region string `json:"region"`
		Voices []struct {
			ID string `json:"id"`
		} `json:"voices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &groups); err != nil {
		t.Fatalf("failed to decode voices: %v", err)
	}
	if len(groups) != 3 || groups[0].Region != "en-US" || groups[0].Voices[0].ID != "alloy" {
		t.Errorf("HandleVoices() = %+v", groups)
	}
}

func TestHandleRespond(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		conv       *mockConversation
		speaker    *mockSpeaker
		wantStatus int
		wantCalls  int
		check      func(t *testing.T, res models.RelayResponse, conv *mockConversation, speaker *mockSpeaker)
	}{
		{
			name:       "Invalid body",
			body:       "{",
			conv:       &mockConversation{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Empty text",
			body:       `{"text":"   ","parentId":""}`,
			conv:       &mockConversation{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown voice",
			body:       `{"text":"Hello","parentId":"","voice":"robot"}`,
			conv:       &mockConversation{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "New conversation",
			body:       `{"text":"Hello","parentId":""}`,
			conv:       &mockConversation{reply: models.Reply{ID: "p1", ConversationID: "c1", Text: "Hi **there**"}},
			wantStatus: http.StatusOK,
			wantCalls:  1,
			check: func(t *testing.T, res models.RelayResponse, conv *mockConversation, _ *mockSpeaker) {
				if res.Text != "Hi **there**" || res.ParentID != "p1" || res.ConvoID != "c1" {
					t.Errorf("response = %+v", res)
				}
				if !strings.Contains(res.HTML, "<strong>there</strong>") {
					t.Errorf("html = %q", res.HTML)
				}
				if res.Voice != nil {
					t.Errorf("voice should be empty without a speaker")
				}
				if conv.gotText != "Hello" || conv.gotOpts.ParentMessageID != "" || conv.gotOpts.ConversationID != "" {
					t.Errorf("conversation called with %q %+v", conv.gotText, conv.gotOpts)
				}
			},
		},
		{
			name:       "Continued conversation with voice",
			body:       `{"text":"How are you?","parentId":"p1","convoId":"c1","voice":"nova"}`,
			conv:       &mockConversation{reply: models.Reply{ID: "p2", ConversationID: "c1", Text: "Fine"}},
			speaker:    &mockSpeaker{payload: models.VoicePayload{Format: "wav", Data: []byte("RIFF")}},
			wantStatus: http.StatusOK,
			wantCalls:  1,
			check: func(t *testing.T, res models.RelayResponse, conv *mockConversation, speaker *mockSpeaker) {
				if conv.gotOpts.ParentMessageID != "p1" || conv.gotOpts.ConversationID != "c1" {
					t.Errorf("thread not passed through: %+v", conv.gotOpts)
				}
				if res.Voice == nil || string(res.Voice.Data) != "RIFF" {
					t.Errorf("voice = %+v", res.Voice)
				}
				if speaker.gotVoice != "nova" {
					t.Errorf("speaker voice = %q", speaker.gotVoice)
				}
			},
		},
		{
			name:       "Speech failure keeps the reply",
			body:       `{"text":"Hello","parentId":"","voice":"alloy"}`,
			conv:       &mockConversation{reply: models.Reply{ID: "p1", ConversationID: "c1", Text: "Hi"}},
			speaker:    &mockSpeaker{err: errors.New("tts down")},
			wantStatus: http.StatusOK,
			wantCalls:  1,
			check: func(t *testing.T, res models.RelayResponse, _ *mockConversation, _ *mockSpeaker) {
				if res.Text != "Hi" || res.Voice != nil {
					t.Errorf("response = %+v", res)
				}
			},
		},
		{
			name:       "Upstream failure",
			body:       `{"text":"Hello","parentId":""}`,
			conv:       &mockConversation{err: errors.New("boom")},
			wantStatus: http.StatusBadGateway,
			wantCalls:  1,
		},
		{
			name:       "Upstream timeout",
			body:       `{"text":"Hello","parentId":""}`,
			conv:       &mockConversation{delay: time.Second},
			wantStatus: http.StatusGatewayTimeout,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var speaker handlers.Speaker
			if tt.speaker != nil {
				speaker = tt.speaker
			}
			routes := newMain(t, tt.conv, speaker, handlers.Config{Timeout: 50 * time.Millisecond})

			req := httptest.NewRequest(http.MethodPost, "/api/respond", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			routes.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("HandleRespond() status = %v, want %v, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.conv.calls != tt.wantCalls {
				t.Errorf("conversation calls = %d, want %d", tt.conv.calls, tt.wantCalls)
			}
			if tt.check == nil {
				return
			}

			var res models.RelayResponse
			if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			tt.check(t, res, tt.conv, tt.speaker)
		})
	}
}

func TestRateLimit(t *testing.T) {
	conv := &mockConversation{reply: models.Reply{ID: "p", ConversationID: "c", Text: "ok"}}
	routes := newMain(t, conv, nil, handlers.Config{RateLimit: 2, RateWindow: time.Minute})

	codes := make([]int, 3)
	var limited *httptest.ResponseRecorder
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/api/respond", strings.NewReader(`{"text":"Hello","parentId":""}`))
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, req)
		codes[i] = w.Code
		limited = w
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}

	if ct := limited.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("429 Content-Type = %q, want application/json", ct)
	}
	if limited.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", limited.Header().Get("Retry-After"))
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(limited.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("429 body = %q, err %v", limited.Body.String(), err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/respond", strings.NewReader(`{"text":"Hello","parentId":""}`))
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other client status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestRateLimiterWindowReopens(t *testing.T) {
	window := 200 * time.Millisecond
	rl := handlers.NewRateLimiter(2, window)
	defer rl.Stop()

	start := time.Now()
	var got []bool
	for i := 0; i < 3; i++ {
		got = append(got, rl.Allow("10.0.0.1"))
	}
	if !got[0] || !got[1] || got[2] {
		t.Fatalf("Allow() in first window = %v", got)
	}

	// Requests rejected inside the window must not keep it open.
	for time.Since(start) < window-50*time.Millisecond {
		if rl.Allow("10.0.0.1") {
			t.Fatalf("Allow() admitted a request over the limit")
		}
		time.Sleep(40 * time.Millisecond)
	}

	time.Sleep(time.Until(start.Add(window + 20*time.Millisecond)))
	if !rl.Allow("10.0.0.1") {
		t.Errorf("Allow() after the window = false, want true")
	}
	if !rl.Allow("10.0.0.1") {
		t.Errorf("second Allow() in the new window = false, want true")
	}
	if rl.Allow("10.0.0.1") {
		t.Errorf("third Allow() in the new window = true, want false")
	}
}

func (m *mockConversation) SendMessage(ctx context.Context, text string, opts models.SendOptions) (models.Reply, error) {
	m.calls++
	m.gotText = text
	m.gotOpts = opts

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return models.Reply{}, ctx.Err()
		}
	}
	return m.reply, m.err
}

func (m *mockSpeaker) Speak(_ context.Context, _ string, voice string) (models.VoicePayload, error) {
	m.gotVoice = voice
	return m.payload, m.err
}
