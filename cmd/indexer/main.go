// Command indexer runs the gachapon event ingestion pipeline.
//
// It subscribes to program logs over WebSocket, decodes the binary events
// embedded in transaction logs, enriches transactions over RPC, and
// reconciles game, play, NFT, and marketplace state into PostgreSQL,
// pushing realtime play updates to Redis or NATS along the way.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/config"
	"github.com/gachalabs/indexer/internal/dispatch"
	"github.com/gachalabs/indexer/internal/events"
	"github.com/gachalabs/indexer/internal/notify"
	"github.com/gachalabs/indexer/internal/oracle"
	"github.com/gachalabs/indexer/internal/reconcile"
	"github.com/gachalabs/indexer/internal/storage"
	"github.com/gachalabs/indexer/internal/stream"
	"github.com/gachalabs/indexer/internal/verify"
	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", ""), "Path to YAML config file")
	wsEndpoint := flag.String("ws", getEnv("WS_ENDPOINT", ""), "WebSocket endpoint override")
	rpcEndpoint := flag.String("rpc", getEnv("RPC_ENDPOINT", ""), "RPC endpoint override")
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

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *wsEndpoint != "" {
		cfg.Stream.Endpoint = *wsEndpoint
	}
	if *rpcEndpoint != "" {
		cfg.RPC.Endpoint = *rpcEndpoint
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	gameProgram, err := solana.PublicKeyFromBase58(cfg.Programs.Game)
	if err != nil {
		logger.Error("invalid game program address", "error", err)
		os.Exit(1)
	}

	logger.Info("starting indexer",
		"ws_endpoint", cfg.Stream.Endpoint,
		"rpc_endpoint", cfg.RPC.Endpoint,
		"game_program", cfg.Programs.Game,
		"marketplace_program", cfg.Programs.Marketplace,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
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

	notifier := buildNotifier(cfg, logger)
	defer notifier.Close()

	chainClient := chain.NewClient(cfg.RPC.Endpoint, gameProgram, logger)

	var payments reconcile.PaymentChecker
	if cfg.Oracle.BaseURL != "" {
		quotes := oracle.NewClient(oracle.Config{
			BaseURL:  cfg.Oracle.BaseURL,
			Timeout:  cfg.Oracle.Timeout,
			CacheTTL: cfg.Oracle.CacheTTL,
		}, logger)
		payments = verify.NewVerifier(quotes, chainClient, verify.Config{
			ToleranceBP:     cfg.Verify.ToleranceBP,
			MaxQuoteAge:     cfg.Verify.MaxQuoteAge,
			MinMarketCapUSD: decimal.NewFromInt(cfg.Verify.MinMarketCapUSD),
		}, logger)
	} else {
		logger.Warn("no oracle configured, payment verification disabled")
	}

	plays := storage.NewPlayRepository(db)
	stores := reconcile.Stores{
		Games:    storage.NewGameRepository(db),
		Prizes:   storage.NewPrizeRepository(db),
		Plays:    plays,
		NFTs:     storage.NewNFTRepository(db),
		Listings: storage.NewListingRepository(db),
	}

	reconciler := reconcile.New(stores, chainClient, payments, notifier, logger)
	decoder := events.NewDecoder(logger)
	dispatcher := dispatch.New(chainClient, decoder, reconciler, cfg.Indexer.QueueSize, logger)

	go dispatcher.Run(ctx)
	go runStaleSweep(ctx, plays, cfg.Indexer, logger)

	client := stream.NewClient(stream.Config{
		Endpoint:             cfg.Stream.Endpoint,
		Programs:             []string{cfg.Programs.Game, cfg.Programs.Marketplace},
		Commitment:           cfg.Stream.Commitment,
		ReconnectBase:        cfg.Stream.ReconnectBase,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
	}, logger)
	if err := client.OnMessage(stream.MessageLogs, dispatcher.Handler()); err != nil {
		logger.Error("failed to register handler", "error", err)
		os.Exit(1)
	}
	if err := client.OnMessage(stream.MessageTransaction, dispatcher.Handler()); err != nil {
		logger.Error("failed to register handler", "error", err)
		os.Exit(1)
	}

	logger.Info("indexer running, waiting for events...")

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stream client exited", "error", err)
		os.Exit(1)
	}

	logger.Info("indexer shutdown complete")
}

// buildNotifier picks the configured pub/sub backend. Redis wins when both
// are set; with neither, notifications are dropped.
func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.Redis.Addr != "" {
		n, err := notify.NewRedisNotifier(notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("redis notifier unavailable, notifications disabled", "error", err)
			return notify.Noop{}
		}
		logger.Info("publishing play updates to redis", "addr", cfg.Redis.Addr)
		return n
	}

	if cfg.NATS.URL != "" {
		n, err := notify.NewNATSNotifier(notify.NATSConfig{URL: cfg.NATS.URL}, logger)
		if err != nil {
			logger.Error("nats notifier unavailable, notifications disabled", "error", err)
			return notify.Noop{}
		}
		logger.Info("publishing play updates to nats", "url", cfg.NATS.URL)
		return n
	}

	logger.Warn("no notifier configured, play updates disabled")
	return notify.Noop{}
}

// runStaleSweep periodically fails pending plays whose resolution never
// arrived, so they do not sit pending forever.
func runStaleSweep(ctx context.Context, plays *storage.PlayRepository, cfg config.IndexerConfig, logger *slog.Logger) {
	if cfg.PlayTimeout <= 0 {
		return
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := plays.FailStale(ctx, cfg.PlayTimeout)
			if err != nil {
				logger.Error("stale play sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("failed stale plays", "count", n)
			}
		}
	}
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
