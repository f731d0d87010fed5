// Package notify pushes per-play realtime messages to whatever pub/sub
// fabric the deployment runs. Delivery is best effort: a notifier failure
// is logged and swallowed, it never stalls ingestion.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message kinds published on a play channel.
const (
	KindPaymentVerified = "payment_verified"
	KindFinalized       = "finalized"
)

// Message is one realtime update about a play, published on the channel
// plays:<signature>.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`

	// Payment verification fields. Reason is the human-readable line the
	// frontend shows, serialized as "message".
	Verified  *bool  `json:"verified,omitempty"`
	ActualUSD string `json:"actualUsd,omitempty"`
	Reason    string `json:"message,omitempty"`

	// Finalization fields.
	State   string  `json:"state,omitempty"`
	IsWin   *bool   `json:"isWin,omitempty"`
	PrizeID *uint64 `json:"prizeId,omitempty"`
	NFTMint string  `json:"nftMint,omitempty"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(kind, signature string) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Signature: signature,
		Timestamp: time.Now().UTC(),
	}
}

// Channel returns the pub/sub channel for a play signature.
func Channel(signature string) string {
	return "plays:" + signature
}

// Notifier publishes play updates. Implementations return an error only
// for the caller's log line; the pipeline treats publishes as fire and
// forget.
type Notifier interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Noop drops every message. Used when no pub/sub backend is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }
func (Noop) Close() error                           { return nil }
