// Package events defines the typed event contract emitted by the gachapon
// on-chain programs and the binary decoder that recovers events from
// transaction log lines.
package events

import (
	"github.com/gagliardetto/solana-go"
)

// Tier is the prize rarity tier, a single-byte tag on the wire.
type Tier uint8

const (
	TierCommon Tier = iota
	TierUncommon
	TierRare
	TierLegendary
)

func (t Tier) String() string {
	switch t {
	case TierCommon:
		return "common"
	case TierUncommon:
		return "uncommon"
	case TierRare:
		return "rare"
	case TierLegendary:
		return "legendary"
	default:
		return "unknown"
	}
}

// Valid reports whether the byte tag maps to a known tier.
func (t Tier) Valid() bool {
	return t <= TierLegendary
}

// Event is the closed set of decoded on-chain events. The dispatcher routes
// on the concrete type, so adding a variant here forces a handler decision
// at compile time.
type Event interface {
	// Name returns the on-chain event name used to derive the discriminator.
	Name() string
}

// Record is one decoded event tagged with its source transaction.
type Record struct {
	Event     Event
	Signature string
	Slot      uint64
}

// GameCreated is emitted when a new game account is initialized.
type GameCreated struct {
	GameID    uint64
	Authority solana.PublicKey
	Timestamp int64
}

func (GameCreated) Name() string { return "GameCreated" }

// PrizeAdded is emitted when a prize is registered on a game.
type PrizeAdded struct {
	GameID        uint64
	PrizeIndex    uint8
	PrizeID       uint64
	ProbabilityBP uint16
	SupplyTotal   uint32
	Timestamp     int64
}

func (PrizeAdded) Name() string { return "PrizeAdded" }

// GamePlayInitiated is emitted when a user pays tokens to open a play session.
type GamePlayInitiated struct {
	User        solana.PublicKey
	GameID      uint64
	TokenAmount uint64
	Session     solana.PublicKey
	Timestamp   int64
}

func (GamePlayInitiated) Name() string { return "GamePlayInitiated" }

// GameStatusUpdated is emitted when a game is activated or deactivated.
type GameStatusUpdated struct {
	GameID    uint64
	IsActive  bool
	Timestamp int64
}

func (GameStatusUpdated) Name() string { return "GameStatusUpdated" }

// SupplyReplenished is emitted when a prize's stock is topped up.
type SupplyReplenished struct {
	GameID     uint64
	PrizeID    uint64
	PrizeIndex uint8
	NewSupply  uint32
	Timestamp  int64
}

func (SupplyReplenished) Name() string { return "SupplyReplenished" }

// TreasuryWithdrawn is emitted when game proceeds leave the treasury.
type TreasuryWithdrawn struct {
	GameID      uint64
	Amount      uint64
	Destination solana.PublicKey
	Timestamp   int64
}

func (TreasuryWithdrawn) Name() string { return "TreasuryWithdrawn" }

// PlayResolved is emitted when the backend finalizes a play session with
// randomness. IsWin false means the draw fell outside the prize range.
type PlayResolved struct {
	User        solana.PublicKey
	GameID      uint64
	Session     solana.PublicKey
	PrizeID     *uint64
	PrizeIndex  *uint8
	Tier        *Tier
	IsWin       bool
	RandomValue [32]byte
	Timestamp   int64
}

func (PlayResolved) Name() string { return "PlayResolved" }

// PrizeClaimed is emitted once the prize NFT is minted, either inline during
// finalization or through the separate claim instruction.
type PrizeClaimed struct {
	User       solana.PublicKey
	GameID     uint64
	Session    solana.PublicKey
	PrizeID    uint64
	PrizeIndex uint8
	Tier       Tier
	NFTMint    solana.PublicKey
	Timestamp  int64
}

func (PrizeClaimed) Name() string { return "PrizeClaimed" }

// NFTListed is emitted by the marketplace program when an NFT enters escrow.
type NFTListed struct {
	Seller    solana.PublicKey
	NFTMint   solana.PublicKey
	Price     uint64
	Timestamp int64
}

func (NFTListed) Name() string { return "NFTListed" }

// NFTDelisted is emitted when a listing is cancelled and escrow returned.
type NFTDelisted struct {
	Seller    solana.PublicKey
	NFTMint   solana.PublicKey
	Timestamp int64
}

func (NFTDelisted) Name() string { return "NFTDelisted" }

// NFTSold is emitted on a completed marketplace purchase.
type NFTSold struct {
	Seller    solana.PublicKey
	Buyer     solana.PublicKey
	NFTMint   solana.PublicKey
	Price     uint64
	Fee       uint64
	Timestamp int64
}

func (NFTSold) Name() string { return "NFTSold" }

// PriceUpdated is emitted when a seller reprices an active listing.
type PriceUpdated struct {
	NFTMint   solana.PublicKey
	OldPrice  uint64
	NewPrice  uint64
	Timestamp int64
}

func (PriceUpdated) Name() string { return "PriceUpdated" }

// PlatformFeesWithdrawn is emitted when accumulated marketplace fees are
// withdrawn. Indexed for audit logging only.
type PlatformFeesWithdrawn struct {
	Amount      uint64
	Destination solana.PublicKey
	Timestamp   int64
}

func (PlatformFeesWithdrawn) Name() string { return "PlatformFeesWithdrawn" }
