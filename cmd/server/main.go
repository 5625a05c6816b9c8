package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/opsdeck/syncline/internal/config"
	"github.com/opsdeck/syncline/internal/server/handlers"
	"github.com/opsdeck/syncline/internal/server/hub"
	"github.com/opsdeck/syncline/internal/server/jwt"
	"github.com/opsdeck/syncline/internal/server/middleware"
	"github.com/opsdeck/syncline/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const pruneInterval = time.Hour

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	tokens := jwt.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	channelHub := hub.New(logger, tokens)

	syncHandler := handlers.NewSyncHandler(logger, store, channelHub)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))

	router.Get("/api/v1/health", healthHandler.Health)
	router.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(middleware.Auth(logger, tokens))
		r.Post("/push", syncHandler.HandlePush)
		r.Post("/pull", syncHandler.HandlePull)
	})
	// The channel authenticates itself from the token query parameter;
	// browsers cannot set headers on websocket dials.
	router.Get("/api/v1/sync/ws", channelHub.ServeHTTP)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go pruneLoop(ctx, logger, store, cfg.EventRetention)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "version", Version)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	channelHub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// pruneLoop removes event log entries older than the retention window.
// Canonical entity rows are never pruned.
func pruneLoop(ctx context.Context, logger *slog.Logger, store *sqlite.Storage, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneEvents(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("event prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned events", "count", n)
			}
		}
	}
}

func printVersion() {
	fmt.Printf("Syncline Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
