package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ewalden/chatstamp/internal/bus"
	"github.com/ewalden/chatstamp/internal/config"
	"github.com/ewalden/chatstamp/internal/intercept"
	"github.com/ewalden/chatstamp/internal/presenter"
	"github.com/ewalden/chatstamp/internal/render"
	"github.com/ewalden/chatstamp/internal/server"
	"github.com/ewalden/chatstamp/internal/settings"
	"github.com/ewalden/chatstamp/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer("chatstamp", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		log.Fatalf("Failed to open settings store: %v", err)
	}
	defer store.Close()

	// The bus is the only channel between interceptor and presenter; the
	// interceptor is constructed before the server so no request reaches
	// the upstream through an unwrapped transport.
	b := bus.New(logger)
	interceptor := intercept.New(b, cfg.Bus.Origin, logger)

	view := render.New(store, logger)
	pres := presenter.New(b, cfg.Bus.Origin, view, logger)

	srv, err := server.New(
		cfg.Server.Port,
		cfg.Upstream.BaseURL,
		interceptor.Transport(nil),
		view,
		store,
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pres.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("chatstamp started",
		slog.Int("port", cfg.Server.Port),
		slog.String("upstream", cfg.Upstream.BaseURL),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("chatstamp shutdown complete")
}
