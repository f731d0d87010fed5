// Command backfill replays a program's historical transactions through
// the reconciliation pipeline. Run it against an empty database for an
// initial sync, or after downtime to close a gap; the reconciler's
// idempotence makes overlapping runs harmless.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"

	"github.com/gachalabs/indexer/internal/backfill"
	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/config"
	"github.com/gachalabs/indexer/internal/events"
	"github.com/gachalabs/indexer/internal/reconcile"
	"github.com/gachalabs/indexer/internal/storage"
)

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", ""), "Path to YAML config file")
	rpcEndpoint := flag.String("rpc", getEnv("RPC_ENDPOINT", ""), "RPC endpoint override")
	program := flag.String("program", "", "Program to backfill (default: both configured programs)")
	maxTx := flag.Int("max-tx", 0, "Transaction budget, 0 for unlimited")
	pageSize := flag.Int("page-size", 100, "Signatures per page")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *rpcEndpoint != "" {
		cfg.RPC.Endpoint = *rpcEndpoint
	}

	programs := []string{cfg.Programs.Game, cfg.Programs.Marketplace}
	if *program != "" {
		programs = []string{*program}
	}

	gameProgram, err := solana.PublicKeyFromBase58(cfg.Programs.Game)
	if err != nil {
		logger.Error("invalid game program address", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	db, err := storage.New(ctx, storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	chainClient := chain.NewClient(cfg.RPC.Endpoint, gameProgram, logger)
	stores := reconcile.Stores{
		Games:    storage.NewGameRepository(db),
		Prizes:   storage.NewPrizeRepository(db),
		Plays:    storage.NewPlayRepository(db),
		NFTs:     storage.NewNFTRepository(db),
		Listings: storage.NewListingRepository(db),
	}

	// Backfill runs without payment verification and without
	// notifications: historical plays have no live subscribers.
	reconciler := reconcile.New(stores, chainClient, nil, nil, logger)
	decoder := events.NewDecoder(logger)

	b := backfill.New(cfg.RPC.Endpoint, chainClient, decoder, reconciler, backfill.Config{
		PageSize:        *pageSize,
		MaxTransactions: *maxTx,
	}, logger)

	total := 0
	for _, addr := range programs {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			logger.Error("invalid program address", "program", addr, "error", err)
			os.Exit(1)
		}

		logger.Info("backfilling program", "program", addr)
		n, err := b.Run(ctx, pk)
		total += n
		if err != nil && ctx.Err() == nil {
			logger.Error("backfill failed", "program", addr, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("backfill complete", "transactions", total)
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
