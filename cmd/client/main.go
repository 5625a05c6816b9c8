package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	clientapi "github.com/opsdeck/syncline/internal/client/api"
	"github.com/opsdeck/syncline/internal/client/cli"
	"github.com/opsdeck/syncline/internal/client/engine"
	"github.com/opsdeck/syncline/internal/client/realtime"
	"github.com/opsdeck/syncline/internal/client/repo"
	"github.com/opsdeck/syncline/internal/client/store/boltdb"
	"github.com/opsdeck/syncline/internal/config"
	"github.com/opsdeck/syncline/internal/server/jwt"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "syncline-client.db", "Path to local database")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}
	command := args[0]

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boltStore, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStore.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	clientID, err := boltStore.ClientID(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read client identity: %v\n", err)
		os.Exit(1)
	}

	// The client signs its own identity token with the shared secret.
	token, err := jwt.NewService(cfg.JWTSecret, cfg.JWTExpiry).GenerateToken(clientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
		os.Exit(1)
	}

	apiClient := clientapi.NewClient(*serverURL, token)

	eng := engine.New(boltStore, apiClient, nil, engine.Config{
		Interval:  cfg.SyncInterval,
		BatchSize: cfg.PushBatchSize,
	}, logger)
	eng.SetChannel(realtime.New(*serverURL, token, realtime.Config{
		Base:       cfg.ReconnectBase,
		Cap:        cfg.ReconnectCap,
		MaxRetries: cfg.ReconnectRetries,
	}, eng, logger))

	app := cli.New(boltStore, repo.New(boltStore), eng, cfg)

	if err := runCommand(ctx, app, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, app *cli.Cli, command string, args []string) error {
	switch command {
	case "watch":
		return app.RunWatch(ctx)
	case "sync":
		return app.RunSync(ctx)
	case "status":
		return app.RunStatus(ctx)
	case "list":
		return app.RunList(ctx, args)
	case "put":
		return app.RunPut(ctx, args)
	case "delete":
		return app.RunDelete(ctx, args)
	case "conflicts":
		return app.RunConflicts(ctx)
	case "resolve":
		return app.RunResolve(ctx, args)
	case "prune":
		return app.RunPrune(ctx)
	default:
		cli.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printVersion() {
	fmt.Printf("Syncline Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
