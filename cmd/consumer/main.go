package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"taskboard/internal/config"
	"taskboard/internal/consumer"
	"taskboard/internal/database"
	"taskboard/pkg/logger"
)

func main() {
	config.LoadEnvFile(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()

	if _, err := database.Connect(ctx); err != nil {
		logger.Error(ctx, "Database not available; exiting", "error", err)
		os.Exit(1)
	}
	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		logger.Error(ctx, "Schema migration failed", "error", err)
		os.Exit(1)
	}

	if err := consumer.New(cfg).Run(ctx); err != nil {
		logger.Error(ctx, "Consumer failed", "error", err)
		os.Exit(1)
	}
}
