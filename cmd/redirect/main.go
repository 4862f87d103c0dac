package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qr-tracker/pkg/app"
	"qr-tracker/pkg/config"
	httphandler "qr-tracker/pkg/http"
	"qr-tracker/pkg/logging"
)

// The redirect edge serves /track only. It shares storage with the api
// binary and never seeds or restores data.
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

	handler, err := a.Handler(nil)
	if err != nil {
		logger.Error(ctx, "failed to build handlers", "error", err)
		os.Exit(1)
	}

	opts := a.RouteOptions()
	r := httphandler.NewRouter(opts)
	httphandler.SetupTrackRoutes(r, handler, opts)

	if err := a.Serve(ctx, r); err != nil {
		logger.Error(ctx, "server error", "error", err)
		os.Exit(1)
	}
}
