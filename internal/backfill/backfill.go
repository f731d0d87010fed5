// Package backfill replays historical program transactions through the
// same decode and reconcile path the live stream uses, so a fresh
// database or a gap after downtime converges to current chain state.
package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/events"
	"github.com/gachalabs/indexer/internal/reconcile"
)

// Enricher resolves signatures into full transactions.
type Enricher interface {
	EnrichTransaction(ctx context.Context, signature string) (*chain.EnrichedTransaction, error)
}

// Decoder recovers typed events from transaction logs.
type Decoder interface {
	Decode(logs []string, signature string, slot uint64) []events.Record
}

// Applier applies decoded events.
type Applier interface {
	Apply(ctx context.Context, rec events.Record) (reconcile.Effect, error)
}

// Config holds backfill settings.
type Config struct {
	// PageSize is the number of signatures fetched per request.
	PageSize int
	// MaxTransactions bounds a run. Zero walks the full history.
	MaxTransactions int
}

// Backfiller pages backwards through a program's signature history and
// reprocesses every successful transaction. Replays are safe because the
// reconciler is idempotent; backfill deliberately skips notifications by
// going through Apply only.
type Backfiller struct {
	rpc      *rpc.Client
	enricher Enricher
	decoder  Decoder
	applier  Applier
	cfg      Config
	logger   *slog.Logger
}

func New(endpoint string, enricher Enricher, decoder Decoder, applier Applier, cfg Config, logger *slog.Logger) *Backfiller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{
		rpc:      rpc.New(endpoint),
		enricher: enricher,
		decoder:  decoder,
		applier:  applier,
		cfg:      cfg,
		logger:   logger.With("component", "backfill"),
	}
}

// Run walks the program's signature history newest-first until the
// history is exhausted, the transaction budget is spent, or ctx ends.
// It returns the number of transactions processed.
func (b *Backfiller) Run(ctx context.Context, program solana.PublicKey) (int, error) {
	var before solana.Signature
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		opts := &rpc.GetSignaturesForAddressOpts{
			Limit:      &b.cfg.PageSize,
			Commitment: rpc.CommitmentConfirmed,
		}
		if !before.IsZero() {
			opts.Before = before
		}

		sigs, err := b.rpc.GetSignaturesForAddressWithOpts(ctx, program, opts)
		if err != nil {
			return processed, fmt.Errorf("list signatures for %s: %w", program, err)
		}
		if len(sigs) == 0 {
			return processed, nil
		}

		for _, info := range sigs {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			before = info.Signature

			if info.Err != nil {
				continue
			}

			if err := b.processSignature(ctx, info.Signature.String()); err != nil {
				b.logger.Error("backfill transaction failed",
					"signature", info.Signature.String(),
					"error", err,
				)
				continue
			}

			processed++
			if b.cfg.MaxTransactions > 0 && processed >= b.cfg.MaxTransactions {
				b.logger.Info("transaction budget reached", "processed", processed)
				return processed, nil
			}
		}

		b.logger.Info("backfill page done", "processed", processed, "cursor", before.String())
	}
}

func (b *Backfiller) processSignature(ctx context.Context, signature string) error {
	enriched, err := b.enricher.EnrichTransaction(ctx, signature)
	if err != nil {
		return err
	}
	if enriched == nil || enriched.Failed {
		return nil
	}

	for _, rec := range b.decoder.Decode(enriched.Logs, enriched.Signature, enriched.Slot) {
		if _, err := b.applier.Apply(ctx, rec); err != nil {
			b.logger.Error("event handler failed during backfill",
				"event", rec.Event.Name(),
				"signature", signature,
				"error", err,
			)
		}
	}
	return nil
}
