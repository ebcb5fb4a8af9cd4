package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MegaGrindStone/talkback/internal/handlers"
	"github.com/MegaGrindStone/talkback/internal/services"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(); err != nil {
		logger.Error("Server failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx := context.Background()

	llm, err := cfg.LLM.llm(ctx, secrets, logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}
	if c, ok := llm.(io.Closer); ok {
		defer c.Close()
	}

	store, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	conversation, err := services.NewConversation(llm, store, cfg.SystemPrompt, cfg.ContextTokens, logger)
	if err != nil {
		return err
	}

	var speaker handlers.Speaker
	sp, err := cfg.Speech.speaker(secrets, logger)
	if err != nil {
		return fmt.Errorf("error creating speech service: %w", err)
	}
	if sp != nil {
		speaker = sp
	}

	m, err := handlers.NewMain(conversation, speaker, handlers.Config{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit.Requests,
		RateWindow: cfg.RateLimit.Window,
	}, logger)
	if err != nil {
		return err
	}

	routes, err := m.Routes()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown handlers", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("store", cfg.Store.Type),
			slog.Bool("speech", speaker != nil))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}

	return nil
}

func newStore(ctx context.Context, cfg storeConfig) (services.MessageStore, func(), error) {
	switch cfg.Type {
	case "redis":
		r, err := services.NewRedis(ctx, cfg.URL, cfg.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to redis: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case "memory":
		return services.NewMemory(), func() {}, nil
	default:
		boltDB, err := services.NewBoltDB(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening bolt store: %w", err)
		}
		return boltDB, func() { _ = boltDB.Close() }, nil
	}
}
