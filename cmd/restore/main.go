package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qr-tracker/pkg/app"
	"qr-tracker/pkg/config"
	"qr-tracker/pkg/logging"
)

// restore copies the scan archive into the local scan log once and exits.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateRestore(); err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(logging.LogLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	inserted, err := a.Synchronizer.Restore(ctx)
	if err != nil {
		logger.Error(ctx, "restore failed", "inserted", inserted, "error", err)
		os.Exit(1)
	}
	fmt.Printf("restored %d scan events\n", inserted)
}
