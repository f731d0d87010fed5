package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/events"
	"github.com/gachalabs/indexer/internal/reconcile"
	"github.com/gachalabs/indexer/internal/stream"
)

type fakeApplier struct {
	applied   []events.Record
	finalized []string
	failOn    string
	effects   map[string]string // event name -> finalize session
}

func (a *fakeApplier) Apply(_ context.Context, rec events.Record) (reconcile.Effect, error) {
	if rec.Event.Name() == a.failOn {
		return reconcile.Effect{}, errors.New("handler boom")
	}
	a.applied = append(a.applied, rec)
	return reconcile.Effect{FinalizeSession: a.effects[rec.Event.Name()]}, nil
}

func (a *fakeApplier) NotifyFinalized(_ context.Context, session string) {
	a.finalized = append(a.finalized, session)
}

type fakeDecoder struct {
	records []events.Record
}

func (d *fakeDecoder) Decode(logs []string, signature string, slot uint64) []events.Record {
	out := make([]events.Record, len(d.records))
	for i, r := range d.records {
		r.Signature = signature
		r.Slot = slot
		out[i] = r
	}
	return out
}

type fakeEnricher struct {
	tx  *chain.EnrichedTransaction
	err error
}

func (e *fakeEnricher) EnrichTransaction(context.Context, string) (*chain.EnrichedTransaction, error) {
	return e.tx, e.err
}

func TestFailedTransactionSkipped(t *testing.T) {
	applier := &fakeApplier{}
	decoder := &fakeDecoder{records: []events.Record{{Event: events.GameCreated{GameID: 1}}}}
	d := New(nil, decoder, applier, 8, nil)

	d.handle(context.Background(), stream.Message{
		Type:      stream.MessageLogs,
		Signature: "sigFailed",
		Failed:    true,
		Logs:      []string{"Program data: whatever"},
	})

	if len(applier.applied) != 0 {
		t.Errorf("applied %d events from a failed transaction, want 0", len(applier.applied))
	}
}

func TestEnrichedFailureSkipped(t *testing.T) {
	applier := &fakeApplier{}
	decoder := &fakeDecoder{records: []events.Record{{Event: events.GameCreated{GameID: 1}}}}
	enricher := &fakeEnricher{tx: &chain.EnrichedTransaction{Signature: "sigX", Failed: true}}
	d := New(enricher, decoder, applier, 8, nil)

	d.handle(context.Background(), stream.Message{
		Type:      stream.MessageLogs,
		Signature: "sigX",
		Logs:      []string{"Program data: whatever"},
	})

	if len(applier.applied) != 0 {
		t.Errorf("applied %d events, want 0 when enrichment reports failure", len(applier.applied))
	}
}

func TestEnrichmentErrorFallsBackToNotificationLogs(t *testing.T) {
	applier := &fakeApplier{}
	decoder := &fakeDecoder{records: []events.Record{{Event: events.GameCreated{GameID: 1}}}}
	enricher := &fakeEnricher{err: errors.New("rpc down")}
	d := New(enricher, decoder, applier, 8, nil)

	d.handle(context.Background(), stream.Message{
		Type:      stream.MessageLogs,
		Signature: "sigY",
		Slot:      42,
		Logs:      []string{"Program data: whatever"},
	})

	if len(applier.applied) != 1 {
		t.Fatalf("applied %d events, want 1 from fallback logs", len(applier.applied))
	}
	if applier.applied[0].Signature != "sigY" || applier.applied[0].Slot != 42 {
		t.Errorf("record tagged %s/%d, want sigY/42",
			applier.applied[0].Signature, applier.applied[0].Slot)
	}
}

func TestHandlerErrorIsolated(t *testing.T) {
	applier := &fakeApplier{failOn: "PrizeAdded"}
	decoder := &fakeDecoder{records: []events.Record{
		{Event: events.GameCreated{GameID: 1}},
		{Event: events.PrizeAdded{GameID: 1, PrizeID: 2}},
		{Event: events.GameStatusUpdated{GameID: 1}},
	}}
	d := New(nil, decoder, applier, 8, nil)

	d.handle(context.Background(), stream.Message{
		Type:      stream.MessageLogs,
		Signature: "sigZ",
		Logs:      []string{"Program data: whatever"},
	})

	if len(applier.applied) != 2 {
		t.Errorf("applied %d events, want 2 around the failing handler", len(applier.applied))
	}
}

func TestFinalizedOncePerTransaction(t *testing.T) {
	// Resolution and claim in one transaction both point at the same
	// session; subscribers get a single finalized notification.
	applier := &fakeApplier{effects: map[string]string{
		"PlayResolved": "sess1",
		"PrizeClaimed": "sess1",
	}}
	decoder := &fakeDecoder{records: []events.Record{
		{Event: events.PlayResolved{GameID: 1}},
		{Event: events.PrizeClaimed{GameID: 1}},
	}}
	d := New(nil, decoder, applier, 8, nil)

	d.handle(context.Background(), stream.Message{
		Type:      stream.MessageLogs,
		Signature: "sigWin",
		Logs:      []string{"Program data: whatever"},
	})

	if len(applier.finalized) != 1 {
		t.Fatalf("finalized notifications = %d, want 1", len(applier.finalized))
	}
	if applier.finalized[0] != "sess1" {
		t.Errorf("finalized session = %q, want sess1", applier.finalized[0])
	}
}

func TestInlineTransactionProcessed(t *testing.T) {
	applier := &fakeApplier{}
	decoder := &fakeDecoder{records: []events.Record{{Event: events.GameCreated{GameID: 1}}}}
	d := New(nil, decoder, applier, 8, nil)

	raw := json.RawMessage(`{
		"meta": {"err": null, "logMessages": ["Program data: whatever"]},
		"transaction": {"message": {"accountKeys": [], "instructions": []}}
	}`)

	d.handle(context.Background(), stream.Message{
		Type:      stream.MessageTransaction,
		Signature: "sigInline",
		Slot:      7,
		Raw:       raw,
	})

	if len(applier.applied) != 1 {
		t.Fatalf("applied %d events from inline transaction, want 1", len(applier.applied))
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	applier := &fakeApplier{}
	decoder := &fakeDecoder{}
	d := New(nil, decoder, applier, 1, nil)

	h := d.Handler()
	h(context.Background(), stream.Message{Signature: "a"})
	h(context.Background(), stream.Message{Signature: "b"}) // dropped

	if len(d.queue) != 1 {
		t.Errorf("queue depth = %d, want 1", len(d.queue))
	}
}
