package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/MegaGrindStone/talkback/internal/relay"
	"github.com/bytedance/sonic"
)

// maxRequestBytes caps the body of a relay request.
const maxRequestBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

// HandleRespond relays one user message. It expects a JSON body with the message text, the identifiers of
// the previous reply (empty for a new conversation) and an optional voice id. The response carries the
// reply, the identifiers to send with the next message, the reply rendered as HTML and, when a voice was
// requested and speech is enabled, the synthesized audio.
//
// Validation failures return 400, an upstream timeout 504 and any other upstream failure 502. A speech
// failure does not fail the request; the reply is returned without audio.
func (m Main) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var req models.RelayRequest
	if err := sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		m.logger.Error("Invalid request body", slog.String(errLoggerKey, err.Error()))
		m.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.Voice != "" {
		if _, _, ok := m.catalog.Lookup(req.Voice); !ok {
			m.logger.Error("Unknown voice", slog.String("voice", req.Voice))
			m.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown voice " + req.Voice})
			return
		}
	}

	res, err := relay.Respond(r.Context(), m.conversation, req, m.timeout)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, relay.ErrEmptyText):
			status = http.StatusBadRequest
		case errors.Is(err, relay.ErrTimeout):
			status = http.StatusGatewayTimeout
		}
		m.logger.Error("Failed to relay message",
			slog.String("parentID", req.ParentID),
			slog.String("convoID", req.ConvoID),
			slog.String(errLoggerKey, err.Error()))
		m.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	html, err := models.RenderMarkdown(res.Text)
	if err != nil {
		m.logger.Warn("Failed to render reply", slog.String(errLoggerKey, err.Error()))
	}
	res.HTML = html

	if req.Voice != "" && m.speaker != nil {
		res.Voice = m.speak(r.Context(), res.Text, req.Voice)
	}

	m.writeJSON(w, http.StatusOK, res)
}

func (m Main) speak(ctx context.Context, text, voice string) *models.VoicePayload {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	payload, err := m.speaker.Speak(ctx, text, voice)
	if err != nil {
		m.logger.Warn("Failed to synthesize speech",
			slog.String("voice", voice),
			slog.String(errLoggerKey, err.Error()))
		return nil
	}
	return &payload
}

// HandleVoices lists the voice catalog grouped by region.
func (m Main) HandleVoices(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, http.StatusOK, m.catalog.Groups())
}

func (m Main) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		m.logger.Error("Failed to marshal response", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
