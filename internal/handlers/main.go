package handlers

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	talkback "github.com/MegaGrindStone/talkback"
	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/MegaGrindStone/talkback/internal/relay"
	"github.com/MegaGrindStone/talkback/internal/voices"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Speaker turns a reply into speech with the selected voice.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) (models.VoicePayload, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// Timeout bounds each call to the conversational API and each speech synthesis.
	Timeout time.Duration
	// RateLimit is the number of relay requests a client may send per RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Main handles the core functionality of the application: it renders the page and relays messages between
// the browser and the conversational API, attaching synthesized speech when a voice is selected.
type Main struct {
	templates *template.Template
	catalog   voices.Catalog

	conversation relay.ConversationAPI
	speaker      Speaker

	timeout time.Duration
	limiter *RateLimiter

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main. speaker may be nil, in which case replies never carry a voice payload.
func NewMain(conversation relay.ConversationAPI, speaker Speaker, cfg Config, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		talkback.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = relay.DefaultTimeout
	}

	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	return Main{
		templates:    tmpl,
		catalog:      voices.Default(),
		conversation: conversation,
		speaker:      speaker,
		timeout:      timeout,
		limiter:      limiter,
		logger:       logger.With(slog.String("module", "handlers")),
	}, nil
}

// Routes wires every handler into a router.
func (m Main) Routes() (http.Handler, error) {
	staticFS, err := fs.Sub(talkback.StaticFS, "static")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Get("/", m.HandleHome)
	r.Get("/api/voices", m.HandleVoices)

	respond := r.With()
	if m.limiter != nil {
		respond = r.With(m.limiter.Middleware)
	}
	respond.Post("/api/respond", m.HandleRespond)

	return r, nil
}

// Shutdown stops the background work of Main.
func (m Main) Shutdown(context.Context) error {
	if m.limiter != nil {
		m.limiter.Stop()
	}
	return nil
}
