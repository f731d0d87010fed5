// Command fixture-recorder captures real program transactions and
// on-chain accounts as JSON fixtures. Transaction fixtures include the
// raw log messages, so they feed the event decoder tests directly;
// account fixtures capture game and prize PDAs for the account codec.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type Fixture struct {
	Type       string          `json:"type"`
	Program    string          `json:"program,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
	Slot       uint64          `json:"slot,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type TransactionFixture struct {
	Signature   string   `json:"signature"`
	Slot        uint64   `json:"slot"`
	BlockTime   int64    `json:"block_time,omitempty"`
	Err         string   `json:"err,omitempty"`
	Fee         uint64   `json:"fee"`
	Accounts    []string `json:"accounts"`
	LogMessages []string `json:"log_messages,omitempty"`
}

type AccountFixture struct {
	Pubkey   string `json:"pubkey"`
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
	DataLen  int    `json:"data_len"`
	Data     string `json:"data,omitempty"`
}

type Config struct {
	Endpoint    string
	OutputDir   string
	FixtureType string
	Program     string
	Account     string
	Count       int
}

func main() {
	endpoint := flag.String("endpoint", "", "RPC endpoint URL")
	outputDir := flag.String("output", "./fixtures", "Output directory for fixtures")
	fixtureType := flag.String("type", "tx", "Fixture type: tx, account")
	program := flag.String("program", "", "Program address for transaction recording")
	account := flag.String("account", "", "Account address for account recording")
	count := flag.Int("count", 10, "Number of transactions to record")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	level := parseLogLevel(*logLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *endpoint == "" {
		logger.Error("endpoint is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := Config{
		Endpoint:    *endpoint,
		OutputDir:   *outputDir,
		FixtureType: *fixtureType,
		Program:     *program,
		Account:     *account,
		Count:       *count,
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		logger.Error("failed to create output directory", "error", err)
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

	logger.Info("starting fixture recorder",
		"type", cfg.FixtureType,
		"output", cfg.OutputDir,
	)

	client := rpc.New(cfg.Endpoint)
	version, err := client.GetVersion(ctx)
	if err != nil {
		logger.Error("failed to connect to RPC", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to RPC", "version", version.SolanaCore)

	switch cfg.FixtureType {
	case "tx":
		err = recordTransactions(ctx, client, cfg, logger)
	case "account":
		err = recordAccount(ctx, client, cfg, logger)
	default:
		logger.Error("unsupported fixture type", "type", cfg.FixtureType)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("recording failed", "error", err)
		os.Exit(1)
	}

	logger.Info("fixture recording complete")
}

// recordTransactions walks the program's recent signatures and saves one
// fixture per transaction, log messages included.
func recordTransactions(ctx context.Context, client *rpc.Client, cfg Config, logger *slog.Logger) error {
	if cfg.Program == "" {
		return fmt.Errorf("program address required for transaction recording (use -program flag)")
	}

	program, err := solana.PublicKeyFromBase58(cfg.Program)
	if err != nil {
		return fmt.Errorf("invalid program address: %w", err)
	}

	logger.Info("fetching program signatures", "program", cfg.Program, "count", cfg.Count)

	sigs, err := client.GetSignaturesForAddressWithOpts(ctx, program, &rpc.GetSignaturesForAddressOpts{
		Limit:      &cfg.Count,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return fmt.Errorf("failed to list signatures: %w", err)
	}

	maxSupportedVersion := uint64(0)
	recorded := 0
	for _, info := range sigs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out, err := client.GetTransaction(ctx, info.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxSupportedVersion,
		})
		if err != nil {
			logger.Warn("failed to fetch transaction", "signature", info.Signature.String(), "error", err)
			continue
		}
		if out == nil || out.Transaction == nil {
			continue
		}

		parsed, err := out.Transaction.GetTransaction()
		if err != nil || parsed == nil {
			logger.Warn("failed to parse transaction", "signature", info.Signature.String(), "error", err)
			continue
		}

		accounts := make([]string, len(parsed.Message.AccountKeys))
		for i, acc := range parsed.Message.AccountKeys {
			accounts[i] = acc.String()
		}

		txFixture := TransactionFixture{
			Signature: info.Signature.String(),
			Slot:      out.Slot,
			Accounts:  accounts,
		}
		if out.BlockTime != nil {
			txFixture.BlockTime = int64(*out.BlockTime)
		}
		if out.Meta != nil {
			txFixture.Fee = out.Meta.Fee
			if out.Meta.Err != nil {
				txFixture.Err = fmt.Sprintf("%v", out.Meta.Err)
			}
			txFixture.LogMessages = out.Meta.LogMessages
		}

		data, err := json.Marshal(txFixture)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction: %w", err)
		}

		fixture := Fixture{
			Type:       "transaction",
			Program:    cfg.Program,
			RecordedAt: time.Now().UTC(),
			Slot:       out.Slot,
			Data:       data,
		}

		sig := info.Signature.String()
		filename := filepath.Join(cfg.OutputDir, fmt.Sprintf("tx_%s.json", sig[:16]))
		if err := saveFixture(filename, fixture); err != nil {
			return err
		}

		recorded++
		logger.Info("recorded transaction", "signature", sig, "slot", out.Slot, "file", filename)
	}

	logger.Info("recorded transactions", "count", recorded)
	return nil
}

// recordAccount snapshots a single account, typically a game or prize PDA
// or a payment token mint.
func recordAccount(ctx context.Context, client *rpc.Client, cfg Config, logger *slog.Logger) error {
	if cfg.Account == "" {
		return fmt.Errorf("account address required for account recording (use -account flag)")
	}

	pubkey, err := solana.PublicKeyFromBase58(cfg.Account)
	if err != nil {
		return fmt.Errorf("invalid account address: %w", err)
	}

	logger.Info("fetching account", "pubkey", cfg.Account)

	account, err := client.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch account: %w", err)
	}
	if account == nil || account.Value == nil {
		return fmt.Errorf("account not found: %s", cfg.Account)
	}

	binaryData := account.Value.Data.GetBinary()
	accountFixture := AccountFixture{
		Pubkey:   cfg.Account,
		Lamports: account.Value.Lamports,
		Owner:    account.Value.Owner.String(),
		DataLen:  len(binaryData),
	}
	if len(binaryData) <= 10240 {
		accountFixture.Data = base64.StdEncoding.EncodeToString(binaryData)
	}

	data, err := json.Marshal(accountFixture)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	slot, _ := client.GetSlot(ctx, rpc.CommitmentConfirmed)

	fixture := Fixture{
		Type:       "account",
		RecordedAt: time.Now().UTC(),
		Slot:       slot,
		Data:       data,
	}

	filename := filepath.Join(cfg.OutputDir, fmt.Sprintf("account_%s.json", cfg.Account[:8]))
	if err := saveFixture(filename, fixture); err != nil {
		return err
	}

	logger.Info("recorded account",
		"pubkey", cfg.Account,
		"owner", account.Value.Owner.String(),
		"data_len", len(binaryData),
		"file", filename,
	)

	return nil
}

func saveFixture(filename string, fixture Fixture) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fixture: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write fixture: %w", err)
	}

	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
