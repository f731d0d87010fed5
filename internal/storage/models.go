package storage

import (
	"time"
)

// PlayState is the lifecycle of a play row. Pending plays move to exactly
// one terminal state; a failed play never becomes completed.
type PlayState string

const (
	PlayPending   PlayState = "pending"
	PlayCompleted PlayState = "completed"
	PlayFailed    PlayState = "failed"
)

// OwnershipSource records how a wallet came to hold an NFT.
const (
	OwnershipClaim    = "claim"
	OwnershipPurchase = "purchase"
)

// Game is one gachapon machine.
type Game struct {
	GameID               uint64
	Address              string
	Authority            string
	Name                 string
	Description          string
	ImageURL             string
	TokenMint            string
	CostUSDCents         uint64
	Treasury             string
	TotalSupplyRemaining uint32
	TotalPlays           uint64
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Prize is one prize slot within a game.
type Prize struct {
	ID               int64
	GameID           uint64
	PrizeID          uint64
	PrizeIndex       uint8
	Name             string
	Description      string
	ImageURL         string
	MetadataURI      string
	PhysicalSKU      string
	Tier             uint8
	ProbabilityBP    uint16
	CostUSDCents     uint64
	WeightGrams      uint32
	LengthHundredths uint16
	WidthHundredths  uint16
	HeightHundredths uint16
	SupplyTotal      uint32
	SupplyRemaining  uint32
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Play is one user play session, keyed by the initiating transaction
// signature and the on-chain session account.
type Play struct {
	ID              string
	Signature       string
	Session         string
	UserAddress     string
	GameID          uint64
	TokenAmount     uint64
	State           PlayState
	IsWin           bool
	PrizeID         *uint64
	PrizeIndex      *uint8
	Tier            *uint8
	RandomValue     string
	NFTMint         *string
	PaymentVerified bool
	PaymentUSD      *string
	Slot            uint64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
}

// NFT is a minted prize NFT and its current holder.
type NFT struct {
	MintAddress  string
	GameID       uint64
	PrizeID      uint64
	Owner        string
	Tier         uint8
	MetadataURI  string
	IsRedeemed   bool
	RedemptionTx *string
	RedeemedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Listing is a marketplace listing for an NFT. One row per mint: relisting
// reactivates the row, a sale closes it.
type Listing struct {
	NFTMint           string
	Seller            string
	PriceLamports     uint64
	IsActive          bool
	Buyer             *string
	SoldPriceLamports *uint64
	FeeLamports       *uint64
	SoldAt            *time.Time
	ListedAt          time.Time
	UpdatedAt         time.Time
}
