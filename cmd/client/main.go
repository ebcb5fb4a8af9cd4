package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MegaGrindStone/talkback/internal/audio"
	"github.com/MegaGrindStone/talkback/internal/client"
	"github.com/MegaGrindStone/talkback/internal/session"
	"github.com/MegaGrindStone/talkback/internal/tui"
	"github.com/MegaGrindStone/talkback/internal/voices"
	"github.com/spf13/cobra"
)

type options struct {
	server  string
	history int
	region  string
	voice   string
	player  string
	saveDir string
	logFile string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "talkback-client",
		Short: "Chat with a talkback server from the terminal",
		Long: "Chat with a talkback server from the terminal. Replies are threaded into one conversation until it " +
			"is cleared with ctrl+l, and spoken aloud when a voice is selected.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "talkback server address")
	flags.IntVar(&opts.history, "history", session.DefaultHistoryLimit, "number of turns to keep on screen")
	flags.StringVar(&opts.region, "region", string(voices.RegionUS), "voice region")
	flags.StringVar(&opts.voice, "voice", "", "voice id, empty disables speech")
	flags.StringVar(&opts.player, "player", "ffplay -nodisp -autoexit -loglevel quiet -",
		"command that plays audio read from stdin")
	flags.StringVar(&opts.saveDir, "save-dir", "", "write received audio into this directory instead of playing it")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file")

	return cmd
}

func run(ctx context.Context, opts options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger(opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	player, err := newPlayer(opts)
	if err != nil {
		return err
	}

	relay := client.NewHTTPRelay(opts.server, client.DefaultTimeout)
	catalog := loadCatalog(ctx, relay, logger)

	s := session.New(relay, player, opts.history, logger)

	tuiOpts := []tui.Option{tui.WithRegion(opts.region)}
	if opts.voice != "" {
		if _, _, ok := catalog.Lookup(opts.voice); !ok {
			return fmt.Errorf("unknown voice %q", opts.voice)
		}
		tuiOpts = append(tuiOpts, tui.WithVoice(opts.voice))
	}

	return tui.Run(tui.New(ctx, s, catalog, tuiOpts...))
}

type voiceLister interface {
	Voices(ctx context.Context) ([]voices.Group, error)
}

// loadCatalog offers the voices the server knows, or the built-in catalog when the server cannot tell.
func loadCatalog(ctx context.Context, lister voiceLister, logger *slog.Logger) voices.Catalog {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	groups, err := lister.Voices(ctx)
	if err != nil {
		logger.Warn("Server voice catalog unavailable, using built-in voices", slog.String("err", err.Error()))
		return voices.Default()
	}
	if len(groups) == 0 {
		logger.Warn("Server offers no voices, using built-in voices")
		return voices.Default()
	}
	return voices.New(groups)
}

// newLogger keeps logs off the terminal, which belongs to the TUI.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}

func newPlayer(opts options) (audio.Player, error) {
	if opts.saveDir != "" {
		return audio.NewFilePlayer(opts.saveDir)
	}

	fields := strings.Fields(opts.player)
	if len(fields) == 0 {
		return nil, nil
	}
	return audio.NewCommandPlayer(fields[0], fields[1:]...), nil
}
