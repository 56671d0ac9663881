// Package main is the entry point for the pinboard API server.
//
// main stays minimal: load config, build the logger, open the database and
// the image store, then hand everything to internal/server. All behaviour
// lives in the internal packages so it can be tested without a process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/pinboard/internal/config"
	sqliteRepo "github.com/sakif/pinboard/internal/repository/sqlite"
	"github.com/sakif/pinboard/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet; config decides its format
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// SIGINT (Ctrl+C) or SIGTERM (docker stop, systemd) cancels ctx and
	// starts the graceful shutdown in server.Start.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return err
		}
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	// closed after Start returns, so in-flight requests finish first
	defer db.Close()

	images, err := server.NewImageStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, db, images, logger)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

// newLogger builds a text logger for development and a JSON logger
// everywhere else, at the configured level.
func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
