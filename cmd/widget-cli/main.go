package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chat-widget/internal/bootstrap"
	"chat-widget/internal/config"
	"chat-widget/internal/logging"
	"chat-widget/internal/usecase"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "widget-cli",
	Short: "Terminal front end for the chat widget",
	Long: `widget-cli talks to the chat widget's agent from a terminal.

The conversation is stored locally (STORAGE_BACKEND=file by default) and
expires 24 hours after it started.

Examples:
  widget-cli chat
  widget-cli history
  widget-cli clear`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)

	rootCmd.PersistentFlags().String("env-file", ".env", "Optional .env file to load")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level to stderr")
}

// session is the conversation a command works on plus what it holds open.
type session struct {
	conv *usecase.Conversation
	deps *bootstrap.Deps
}

func (s *session) Close() {
	s.deps.Close()
}

// openSession loads configuration and returns the initialized local
// conversation.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotenv(envFile); err != nil {
		return nil, err
	}
	if os.Getenv("STORAGE_BACKEND") == "" {
		_ = os.Setenv("STORAGE_BACKEND", config.BackendFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), level, "text")

	deps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	conv, err := deps.NewConversation(cfg, cfg.StorageKey, log)
	if err != nil {
		deps.Close()
		return nil, err
	}
	conv.Initialize(ctx)
	return &session{conv: conv, deps: deps}, nil
}
