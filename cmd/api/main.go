package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/negi-chat/internal/config"
	"github.com/zhouzirui/negi-chat/internal/handler"
	"github.com/zhouzirui/negi-chat/internal/model/persona"
	"github.com/zhouzirui/negi-chat/internal/service/ai"
	"github.com/zhouzirui/negi-chat/internal/service/chat"
	"github.com/zhouzirui/negi-chat/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; the process environment always wins.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Server)
	log.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using process environment")
	}

	chatModel, err := ai.NewChatModel(ctx, cfg.AI)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.AI.Provider).Msg("failed to initialize chat model")
	}

	aiService, err := ai.NewService(ctx, chatModel, persona.Default(), ai.Params{
		Temperature: cfg.AI.Temperature,
		TopP:        cfg.AI.TopP,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize AI service")
	}
	logger.Info().
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Msg("AI service initialized")

	sessions := session.NewStore(session.Config{
		Capacity:    cfg.Session.Capacity,
		TTL:         cfg.Session.TTL,
		MaxMessages: cfg.Session.MaxMessages,
	}, logger)
	janitor := session.NewJanitor(sessions, cfg.Session.SweepInterval, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	gateway := chat.NewService(sessions, aiService, chat.Options{
		Timeout:          cfg.AI.Timeout,
		MaxMessageLength: cfg.Server.MaxMessageLength,
	}, logger)

	router := handler.NewRouter(gateway, handler.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(serverCfg config.ServerConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	if serverCfg.IsDevelopment() {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if serverCfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "negi-chat").Logger()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Str("env", serverCfg.Env).Msg("negi-chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
