package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/MegaGrindStone/talkback/internal/audio"
	"github.com/MegaGrindStone/talkback/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// openAISpeechRate is the sample rate of the raw PCM returned by the OpenAI speech endpoint.
const openAISpeechRate = 24000

// OpenAISpeech synthesizes replies with OpenAI's text-to-speech endpoint.
type OpenAISpeech struct {
	model  string
	format string

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAISpeech creates a speech service producing payloads in format (wav, mp3, pcm or mulaw).
func NewOpenAISpeech(apiKey, baseURL, model, format string, logger *slog.Logger) (OpenAISpeech, error) {
	switch format {
	case "":
		format = audio.FormatWAV
	case audio.FormatWAV, audio.FormatMP3, audio.FormatPCM, audio.FormatMulaw:
	default:
		return OpenAISpeech{}, fmt.Errorf("unsupported speech format %q", format)
	}
	if model == "" {
		model = string(goopenai.TTSModel1)
	}

	return OpenAISpeech{
		model:  model,
		format: format,
		client: newOpenAIClient(apiKey, baseURL),
		logger: logger.With(slog.String("module", "speech")),
	}, nil
}

// Speak synthesizes text with the given voice.
func (s OpenAISpeech) Speak(ctx context.Context, text, voice string) (models.VoicePayload, error) {
	// µ-law is not offered by the API, it is produced locally from raw PCM.
	requested := s.format
	if requested == audio.FormatMulaw {
		requested = audio.FormatPCM
	}

	res, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(s.model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(voice),
		ResponseFormat: goopenai.SpeechResponseFormat(requested),
	})
	if err != nil {
		return models.VoicePayload{}, fmt.Errorf("error sending speech request: %w", err)
	}
	defer res.Close()

	data, err := io.ReadAll(res)
	if err != nil {
		return models.VoicePayload{}, fmt.Errorf("error reading speech response: %w", err)
	}

	payload := models.VoicePayload{Format: s.format, Data: data}
	switch s.format {
	case audio.FormatPCM:
		payload.SampleRate = openAISpeechRate
	case audio.FormatMulaw:
		payload.SampleRate = openAISpeechRate
		if payload.Data, err = audio.PCMToMulaw(data); err != nil {
			return models.VoicePayload{}, fmt.Errorf("error encoding speech: %w", err)
		}
	}

	s.logger.Debug("Synthesized speech",
		slog.String("voice", voice),
		slog.String("format", s.format),
		slog.Int("bytes", len(payload.Data)))

	return payload, nil
}
