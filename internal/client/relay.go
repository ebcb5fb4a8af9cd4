// Package client talks to a talkback server over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/MegaGrindStone/talkback/internal/voices"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrUpstream    = errors.New("upstream failure")
	ErrTimeout     = errors.New("upstream timeout")
)

// DefaultTimeout leaves the server room to hit its own 20s upstream deadline and answer.
const DefaultTimeout = 30 * time.Second

// HTTPRelay sends relay requests to the server's /api/respond endpoint.
type HTTPRelay struct {
	client *resty.Client
}

type errorBody struct {
	Error string `json:"error"`
}

// NewHTTPRelay creates a relay client for the server at baseURL.
func NewHTTPRelay(baseURL string, timeout time.Duration) HTTPRelay {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	return HTTPRelay{client: cli}
}

// Respond posts req and returns the decoded reply.
func (h HTTPRelay) Respond(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
	var res models.RelayResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&res).
		Post("/api/respond")
	if err != nil {
		if isTimeout(err) {
			return models.RelayResponse{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return models.RelayResponse{}, fmt.Errorf("respond request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return models.RelayResponse{}, err
	}

	return res, nil
}

// Voices fetches the voice catalog offered by the server.
func (h HTTPRelay) Voices(ctx context.Context) ([]voices.Group, error) {
	var groups []voices.Group
	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&groups).
		Get("/api/voices")
	if err != nil {
		return nil, fmt.Errorf("voices request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}

	return groups, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	msg := strings.TrimSpace(string(resp.Body()))
	var body errorBody
	if err := sonic.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		msg = body.Error
	}

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %ss", ErrRateLimited, resp.Header().Get("Retry-After"))
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, msg)
	case http.StatusBadGateway:
		return fmt.Errorf("%w: %s", ErrUpstream, msg)
	default:
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode(), msg)
	}
}
