package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/hoodchat/internal/presence"
	"github.com/Tyrowin/hoodchat/internal/server"
	"github.com/Tyrowin/hoodchat/internal/session"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to ./hoodchat.yaml when present)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := server.NewLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("starting Hood chat relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close session store", slog.Any("error", err))
		}
	}()

	hub := server.NewHub(cfg, presence.NewRegistry(logger), store, logger)
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", slog.Any("error", err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Warn("HTTP server did not shut down cleanly", slog.Any("error", err))
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub did not shut down cleanly", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

// newSessionStore picks Valkey when an address is configured and the
// in-memory store otherwise.
func newSessionStore(ctx context.Context, cfg *server.Config, logger *slog.Logger) (session.Store, error) {
	if cfg.Session.ValkeyAddr != "" {
		logger.Info("using valkey session store", slog.String("addr", cfg.Session.ValkeyAddr))
		return session.NewValkeyStore(cfg.Session.ValkeyAddr, cfg.Session.ValkeyPassword, cfg.Session.TTL)
	}

	logger.Info("using in-memory session store", slog.Duration("ttl", cfg.Session.TTL))
	store := session.NewMemoryStore(cfg.Session.TTL, logger)
	go store.Run(ctx, sessionSweepInterval)
	return store, nil
}
