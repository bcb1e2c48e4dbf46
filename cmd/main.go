package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/trunov/thumbnailer/internal/app"
	"github.com/trunov/thumbnailer/internal/config"
	"github.com/trunov/thumbnailer/internal/logger"
)

var version = "dev"

func initSentry(cfg *config.Config) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	// a missing .env is fine: production passes real environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg := logger.New(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(lg)

	if err := initSentry(cfg); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}

	code := run(cfg, lg)
	// Flush buffered events before the program terminates.
	sentry.Flush(2 * time.Second)
	os.Exit(code)
}

func run(cfg *config.Config, lg *slog.Logger) int {
	ctx := context.Background()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to start", logger.Error(err))
		sentry.CaptureException(err)
		return 1
	}

	if err := a.Run(ctx); err != nil {
		lg.Error("stopped with error", logger.Error(err))
		sentry.CaptureException(err)
		return 1
	}
	return 0
}
