package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"chat-widget/handler"
	"chat-widget/internal/bootstrap"
	"chat-widget/internal/config"
	"chat-widget/internal/logging"
	"chat-widget/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	// ---- Clients ----
	deps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	registry, err := usecase.NewRegistry(func(visitorID string) (*usecase.Conversation, error) {
		return deps.NewConversation(cfg, cfg.StorageKey+":"+visitorID, log.With("visitor_id", visitorID))
	})
	if err != nil {
		log.Error("failed to create conversation registry", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(registry, handler.WithLogger(log))
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
