package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/negi-chat/internal/client/api"
	"github.com/zhouzirui/negi-chat/internal/client/conversation"
	"github.com/zhouzirui/negi-chat/internal/client/transcript"
	"github.com/zhouzirui/negi-chat/internal/config"
	"github.com/zhouzirui/negi-chat/internal/model/persona"
)

// app holds what every command needs once flags are parsed.
type app struct {
	cfg     *config.ClientConfig
	logger  zerolog.Logger
	kv      *transcript.BadgerKV
	store   *transcript.Store
	persona persona.Persona
	turns   *conversation.Controller
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{persona: persona.Default()}
	err := newRootCmd(a).ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var (
		serverURL string
		dataDir   string
		timeout   time.Duration
		verbose   bool
	)

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with " + a.persona.Name + " from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.ServerURL = serverURL
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = timeout
			}
			return a.open(cfg, verbose)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&serverURL, "server", "", "chat server base URL (default $CHAT_SERVER_URL or http://localhost:3000)")
	flags.StringVar(&dataDir, "data-dir", "", "directory for local chat history (default $CHAT_DATA_DIR or ~/.negi-chat)")
	flags.DurationVar(&timeout, "timeout", 0, "request timeout (default $CHAT_TIMEOUT or 60s)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newListCmd(a),
		newNewCmd(a),
		newUseCmd(a),
		newDeleteCmd(a),
		newSendCmd(a),
		newThemeCmd(a),
		newShowCmd(a),
	)
	return root
}

func (a *app) open(cfg *config.ClientConfig, verbose bool) error {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
	a.cfg = cfg

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	kv, err := transcript.OpenBadger(cfg.DataDir)
	if err != nil {
		return err
	}

	store, err := transcript.Open(kv, transcript.Options{Persona: a.persona, Logger: a.logger})
	if err != nil {
		_ = kv.Close()
		return err
	}

	a.kv = kv
	a.store = store
	a.turns = conversation.New(store, api.New(cfg.ServerURL, cfg.Timeout), a.persona, a.logger)
	a.logger.Debug().Str("server", cfg.ServerURL).Str("data_dir", cfg.DataDir).Msg("client ready")
	return nil
}

func (a *app) close() error {
	if a.kv == nil {
		return nil
	}
	err := a.kv.Close()
	a.kv = nil
	return err
}
