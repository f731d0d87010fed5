// Package dispatch consumes stream messages and drives decoded events
// through the reconciler, one transaction at a time.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/events"
	"github.com/gachalabs/indexer/internal/reconcile"
	"github.com/gachalabs/indexer/internal/stream"
)

// Applier applies one decoded event and reports follow-up work.
type Applier interface {
	Apply(ctx context.Context, rec events.Record) (reconcile.Effect, error)
	NotifyFinalized(ctx context.Context, session string)
}

// Enricher resolves a bare signature into a full transaction. Optional:
// without one, log notifications are processed from their inline log
// lines alone.
type Enricher interface {
	EnrichTransaction(ctx context.Context, signature string) (*chain.EnrichedTransaction, error)
}

// Decoder recovers typed events from transaction logs.
type Decoder interface {
	Decode(logs []string, signature string, slot uint64) []events.Record
}

const defaultQueueSize = 1024

// Dispatcher buffers incoming stream messages and processes them in
// order on a single worker, so per-transaction effects stay sequential.
type Dispatcher struct {
	enricher Enricher
	decoder  Decoder
	applier  Applier
	queue    chan stream.Message
	logger   *slog.Logger
}

func New(enricher Enricher, decoder Decoder, applier Applier, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		enricher: enricher,
		decoder:  decoder,
		applier:  applier,
		queue:    make(chan stream.Message, queueSize),
		logger:   logger.With("component", "dispatcher"),
	}
}

// Handler returns the stream callback that feeds the queue. A full queue
// drops the message with a log line rather than blocking the socket
// reader.
func (d *Dispatcher) Handler() stream.Handler {
	return func(ctx context.Context, msg stream.Message) {
		select {
		case d.queue <- msg:
		default:
			d.logger.Error("queue full, dropping message",
				"signature", msg.Signature,
				"slot", msg.Slot,
			)
		}
	}
}

// Run processes queued messages until the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg stream.Message) {
	switch msg.Type {
	case stream.MessageLogs:
		d.handleLogs(ctx, msg)
	case stream.MessageTransaction:
		d.handleTransaction(ctx, msg)
	}
}

func (d *Dispatcher) handleLogs(ctx context.Context, msg stream.Message) {
	if msg.Failed {
		d.logger.Debug("skipping failed transaction", "signature", msg.Signature)
		return
	}

	logs := msg.Logs
	slot := msg.Slot

	if d.enricher != nil {
		enriched, err := d.enricher.EnrichTransaction(ctx, msg.Signature)
		if err != nil {
			d.logger.Error("enrichment failed, falling back to notification logs",
				"signature", msg.Signature,
				"error", err,
			)
		} else if enriched != nil {
			if enriched.Failed {
				d.logger.Debug("transaction failed on-chain", "signature", msg.Signature)
				return
			}
			logs = enriched.Logs
			slot = enriched.Slot
		}
	}

	d.process(ctx, msg.Signature, slot, logs)
}

func (d *Dispatcher) handleTransaction(ctx context.Context, msg stream.Message) {
	enriched, err := chain.ParseInline(msg.Raw, msg.Signature, msg.Slot)
	if err != nil {
		d.logger.Error("inline transaction parse failed",
			"signature", msg.Signature,
			"error", err,
		)
		return
	}
	if enriched.Failed {
		d.logger.Debug("skipping failed transaction", "signature", msg.Signature)
		return
	}

	d.process(ctx, enriched.Signature, enriched.Slot, enriched.Logs)
}

// process decodes and applies one successful transaction. Handler errors
// are isolated per event, and each play session that reached a terminal
// state gets exactly one finalized notification for the transaction.
func (d *Dispatcher) process(ctx context.Context, signature string, slot uint64, logs []string) {
	records := d.decoder.Decode(logs, signature, slot)
	if len(records) == 0 {
		return
	}

	finalize := make([]string, 0, 1)
	seen := make(map[string]bool)

	for _, rec := range records {
		effect, err := d.applier.Apply(ctx, rec)
		if err != nil {
			d.logger.Error("event handler failed",
				"event", rec.Event.Name(),
				"signature", signature,
				"error", err,
			)
			continue
		}
		if s := effect.FinalizeSession; s != "" && !seen[s] {
			seen[s] = true
			finalize = append(finalize, s)
		}
	}

	for _, session := range finalize {
		d.applier.NotifyFinalized(ctx, session)
	}
}
