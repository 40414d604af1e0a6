package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	logger := bootstrap.InitLogger()
	err := run(ctx, logger)
	stop()
	if err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	bootstrap.SetLogLevel(cfg.LogLevel)

	logStartupInfo(ctx, logger, &cfg)
	return bootstrap.Run(ctx, &cfg, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	attrs := []any{
		"auth_mode", cfg.Auth.Mode,
		"storage", cfg.Storage,
		"http_addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev,
	}
	if cfg.Storage == config.StoragePostgres {
		attrs = append(attrs, "db_host", cfg.Postgres.Host, "db_port", cfg.Postgres.Port, "db_name", cfg.Postgres.Name)
	}
	if cfg.Auth.Mode == config.AuthModeOAuth {
		attrs = append(attrs, "session_store", cfg.SessionStore)
	}
	logger.InfoContext(ctx, "starting ragbox auth service", attrs...)
}
