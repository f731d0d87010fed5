// Package chain talks to the Solana RPC endpoint: it enriches bare
// signatures into full transaction records and reads program accounts the
// indexer needs to trust beyond what events alone carry.
package chain

import (
	"github.com/gagliardetto/solana-go"
)

// EnrichedTransaction is the one normalized transaction shape every
// downstream component sees, regardless of whether the provider delivered
// an inline transaction or only logs, and regardless of transaction
// version.
type EnrichedTransaction struct {
	Signature    string
	Slot         uint64
	AccountKeys  []solana.PublicKey
	Instructions []Instruction
	Logs         []string
	// Failed reports a non-null meta err: no events from such a
	// transaction are trusted.
	Failed bool
}

// Instruction is one flattened instruction: program, account indices into
// AccountKeys, and raw data.
type Instruction struct {
	ProgramID      solana.PublicKey
	AccountIndices []uint16
	Data           []byte
}

// GameAccount mirrors the on-chain game state.
type GameAccount struct {
	Authority            solana.PublicKey
	GameID               uint64
	Name                 string
	Description          string
	ImageURL             string
	TokenMint            solana.PublicKey
	CostUSD              uint64
	Treasury             solana.PublicKey
	PrizeCount           uint8
	PrizeProbabilities   [maxPrizes]uint16
	TotalSupplyRemaining uint32
	TotalPlays           uint64
	IsActive             bool
	LastRandomValue      [32]byte
}

// PrizeAccount mirrors the on-chain prize state.
type PrizeAccount struct {
	Game             solana.PublicKey
	PrizeIndex       uint8
	PrizeID          uint64
	Name             string
	Description      string
	ImageURL         string
	MetadataURI      string
	PhysicalSKU      string
	Tier             uint8
	ProbabilityBP    uint16
	CostUSD          uint64
	WeightGrams      uint32
	LengthHundredths uint16
	WidthHundredths  uint16
	HeightHundredths uint16
	SupplyTotal      uint32
	SupplyRemaining  uint32
}

// maxPrizes matches the program's per-game prize slot count.
const maxPrizes = 16
