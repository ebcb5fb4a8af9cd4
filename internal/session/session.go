// Package session holds the client side of a conversation: a bounded turn history, the thread identifiers
// of the most recent reply and the single outstanding request.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/talkback/internal/audio"
	"github.com/MegaGrindStone/talkback/internal/history"
	"github.com/MegaGrindStone/talkback/internal/models"
)

// Relay sends one message to the relay procedure.
type Relay interface {
	Respond(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error)
}

// State is the position of the controller in its submit cycle.
type State int

const (
	// StateIdle accepts a new submission.
	StateIdle State = iota
	// StateSubmitting waits for the reply of the outstanding request.
	StateSubmitting
)

// DefaultHistoryLimit is the number of turns kept when no limit is configured.
const DefaultHistoryLimit = 50

var (
	// ErrEmptyInput is returned when the submitted text is empty after trimming. No request is sent.
	ErrEmptyInput = errors.New("empty input")
	// ErrPending is returned when a request is already outstanding.
	ErrPending = errors.New("request pending")
	// ErrStaleReply is returned when the session was reset while the request was in flight. The reply is
	// discarded.
	ErrStaleReply = errors.New("stale reply")
)

// Controller drives one conversation. It is safe for concurrent use; the mutex is never held across the
// relay call or playback.
type Controller struct {
	relay  Relay
	player audio.Player

	mu      sync.Mutex
	turns   *history.Ring[models.Turn]
	thread  models.Thread
	pending bool
	epoch   uint64
	voice   string
	lastErr error

	logger *slog.Logger
}

const errLoggerKey = "err"

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSubmitting:
		return "SUBMITTING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// New creates a controller. player may be nil, in which case voice payloads are ignored. A non-positive
// historyLimit falls back to DefaultHistoryLimit.
func New(relay Relay, player audio.Player, historyLimit int, logger *slog.Logger) *Controller {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Controller{
		relay:  relay,
		player: player,
		turns:  history.New[models.Turn](historyLimit),
		logger: logger.With(slog.String("module", "session")),
	}
}

// CanSubmit reports whether text would be accepted by Submit right now.
func (c *Controller) CanSubmit(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return strings.TrimSpace(text) != "" && !c.pending
}

// Submit sends text to the relay and waits for the reply. The human turn is appended before the request is
// sent and kept on failure. On success the AI turn is appended, the thread moves to the returned ids and the
// voice payload, if any, starts playing in the background.
func (c *Controller) Submit(ctx context.Context, text string) (models.RelayResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.RelayResponse{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return models.RelayResponse{}, ErrPending
	}
	c.pending = true
	c.lastErr = nil
	c.turns.Push(models.Turn{Speaker: models.SpeakerHuman, Text: text})
	epoch := c.epoch
	req := models.RelayRequest{
		Text:     text,
		ParentID: c.thread.ParentMessageID,
		ConvoID:  c.thread.ConversationID,
		Voice:    c.voice,
	}
	c.mu.Unlock()

	res, err := c.relay.Respond(ctx, req)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("Discarding reply of a reset session", slog.String("parentID", res.ParentID))
		return models.RelayResponse{}, ErrStaleReply
	}
	c.pending = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Error("Failed to relay message", slog.String(errLoggerKey, err.Error()))
		return models.RelayResponse{}, err
	}
	c.turns.Push(models.Turn{Speaker: models.SpeakerAI, Text: res.Text})
	c.thread = res.Thread()
	c.mu.Unlock()

	if res.Voice != nil {
		c.play(*res.Voice)
	}

	return res, nil
}

func (c *Controller) play(payload models.VoicePayload) {
	if c.player == nil {
		return
	}

	clip, err := audio.Decode(payload)
	if err != nil {
		c.logger.Warn("Failed to decode voice payload",
			slog.String("format", payload.Format),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	go func() {
		if err := c.player.Play(context.Background(), clip); err != nil {
			c.logger.Warn("Failed to play voice payload", slog.String(errLoggerKey, err.Error()))
		}
	}()
}

// Reset clears the history and the thread, so the next submission starts a new conversation. A request in
// flight is not cancelled, but its reply is discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns.Clear()
	c.thread = models.Thread{}
	c.pending = false
	c.lastErr = nil
	c.epoch++
}

// Turns returns the history, oldest first.
func (c *Controller) Turns() []models.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.turns.Items()
}

// Thread returns the identifiers the next request will carry.
func (c *Controller) Thread() models.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.thread
}

// Pending reports whether a request is outstanding.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending
}

// State returns the current state.
func (c *Controller) State() State {
	if c.Pending() {
		return StateSubmitting
	}
	return StateIdle
}

// LastError returns the error of the last failed submission, cleared by the next submission or a reset.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// SetVoice selects the voice sent with the following requests. An empty id disables speech.
func (c *Controller) SetVoice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.voice = id
}

// Voice returns the selected voice id.
func (c *Controller) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.voice
}
