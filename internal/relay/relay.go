// Package relay forwards a user message to a conversational API and normalizes its reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MegaGrindStone/talkback/internal/models"
)

// DefaultTimeout bounds a single call to the conversational API.
const DefaultTimeout = 20 * time.Second

var (
	// ErrEmptyText is returned for input that is empty after trimming.
	ErrEmptyText = errors.New("text is required")
	// ErrUpstream wraps every failure of the conversational API.
	ErrUpstream = errors.New("conversational api failed")
	// ErrTimeout is returned when the conversational API did not answer within the timeout.
	ErrTimeout = errors.New("conversational api timed out")
)

// ConversationAPI is the external conversational service. Implementations thread the new message onto
// ParentMessageID inside ConversationID and report the id of their reply.
type ConversationAPI interface {
	SendMessage(ctx context.Context, text string, opts models.SendOptions) (models.Reply, error)
}

// Respond sends req.Text to api, continuing the thread described by req, and returns the reply together
// with the identifiers the caller needs for its next request. A timeout of zero means DefaultTimeout.
//
// Nothing is retried: an upstream error or a timeout fails the whole call.
func Respond(
	ctx context.Context,
	api ConversationAPI,
	req models.RelayRequest,
	timeout time.Duration,
) (models.RelayResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return models.RelayResponse{}, ErrEmptyText
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := api.SendMessage(ctx, req.Text, models.SendOptions{
		ConversationID:  req.ConvoID,
		ParentMessageID: req.ParentID,
		Timeout:         timeout,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.RelayResponse{}, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		return models.RelayResponse{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	return models.RelayResponse{
		Text:     reply.Text,
		ParentID: reply.ID,
		ConvoID:  reply.ConversationID,
	}, nil
}
