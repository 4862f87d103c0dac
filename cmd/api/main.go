package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qr-tracker/pkg/app"
	"qr-tracker/pkg/config"
	"qr-tracker/pkg/http"
	"qr-tracker/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
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

	if err := a.Prepare(ctx); err != nil {
		logger.Error(ctx, "failed to prepare data", "error", err)
		os.Exit(1)
	}

	auth, err := a.Authenticator(ctx)
	if err != nil {
		logger.Error(ctx, "failed to set up authentication", "error", err)
		os.Exit(1)
	}
	handler, err := a.Handler(auth)
	if err != nil {
		logger.Error(ctx, "failed to build handlers", "error", err)
		os.Exit(1)
	}

	opts := a.RouteOptions()
	r := http.NewRouter(opts)
	http.SetupRoutes(r, handler, opts)

	if err := a.Serve(ctx, r); err != nil {
		logger.Error(ctx, "server error", "error", err)
		os.Exit(1)
	}
}
