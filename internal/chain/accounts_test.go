package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"
)

type accountBuilder struct {
	buf bytes.Buffer
}

func newAccountData() *accountBuilder {
	b := &accountBuilder{}
	// Account discriminator: contents don't matter to the decoder.
	b.buf.Write(make([]byte, accountDiscriminatorLen))
	return b
}

func (b *accountBuilder) u8(v uint8) *accountBuilder {
	b.buf.WriteByte(v)
	return b
}

func (b *accountBuilder) u16(v uint16) *accountBuilder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *accountBuilder) u32(v uint32) *accountBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *accountBuilder) u64(v uint64) *accountBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *accountBuilder) str(s string) *accountBuilder {
	b.u32(uint32(len(s)))
	b.buf.WriteString(s)
	return b
}

func (b *accountBuilder) fill(n int, v byte) *accountBuilder {
	b.buf.Write(bytes.Repeat([]byte{v}, n))
	return b
}

func TestDecodeGameAccount(t *testing.T) {
	b := newAccountData().
		fill(32, 0xA1). // authority
		u64(7).
		str("Capsule Rush").
		str("Win collectible prizes").
		str("https://cdn.example/game7.png").
		fill(32, 0xB2). // token mint
		u64(250).       // $2.50 in cents
		fill(32, 0xC3)  // treasury
	b.u8(2) // prize count
	for i := 0; i < maxPrizes; i++ {
		if i < 2 {
			b.u16(2500)
		} else {
			b.u16(0)
		}
	}
	b.u32(40).      // total supply remaining
		u64(123).   // total plays
		u8(1).      // is_active
		fill(32, 0) // last random value
	b.u8(0xFF)      // bump
	b.fill(100, 0)  // account padding

	game, err := decodeGameAccount(b.buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if game.GameID != 7 {
		t.Errorf("GameID = %d, want 7", game.GameID)
	}
	if game.Name != "Capsule Rush" {
		t.Errorf("Name = %q", game.Name)
	}
	if game.CostUSD != 250 {
		t.Errorf("CostUSD = %d, want 250", game.CostUSD)
	}
	if game.PrizeCount != 2 {
		t.Errorf("PrizeCount = %d, want 2", game.PrizeCount)
	}
	if game.PrizeProbabilities[0] != 2500 || game.PrizeProbabilities[2] != 0 {
		t.Errorf("probabilities = %v", game.PrizeProbabilities)
	}
	if game.TotalPlays != 123 {
		t.Errorf("TotalPlays = %d, want 123", game.TotalPlays)
	}
	if !game.IsActive {
		t.Error("IsActive = false, want true")
	}
}

func TestDecodePrizeAccount(t *testing.T) {
	b := newAccountData().
		fill(32, 0xD4). // parent game
		u8(1).
		u64(42).
		str("Golden Capsule").
		str("Top tier prize").
		str("https://cdn.example/prize42.png").
		str("https://meta.example/prize42.json").
		str("SKU-42").
		u8(3).     // legendary
		u16(100).  // 1% probability
		u64(5000). // $50.00
		u32(120).  // weight grams
		u16(650).u16(400).u16(300).
		u32(10). // supply total
		u32(9).  // supply remaining
		u8(0xFE).
		fill(50, 0) // padding

	prize, err := decodePrizeAccount(b.buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prize.PrizeID != 42 || prize.PrizeIndex != 1 {
		t.Errorf("identity = (%d,%d), want (42,1)", prize.PrizeID, prize.PrizeIndex)
	}
	if prize.Name != "Golden Capsule" {
		t.Errorf("Name = %q", prize.Name)
	}
	if prize.Tier != 3 {
		t.Errorf("Tier = %d, want 3", prize.Tier)
	}
	if prize.ProbabilityBP != 100 {
		t.Errorf("ProbabilityBP = %d, want 100", prize.ProbabilityBP)
	}
	if prize.SupplyTotal != 10 || prize.SupplyRemaining != 9 {
		t.Errorf("supply = %d/%d, want 9/10", prize.SupplyRemaining, prize.SupplyTotal)
	}
}

func TestDecodeAccountTruncated(t *testing.T) {
	if _, err := decodeGameAccount([]byte{1, 2, 3}); err == nil {
		t.Error("short game account decoded without error")
	}

	b := newAccountData().fill(32, 1).u64(7) // stops mid-struct
	if _, err := decodeGameAccount(b.buf.Bytes()); err == nil {
		t.Error("truncated game account decoded without error")
	}
}

func TestParseInline(t *testing.T) {
	raw := json.RawMessage(`{
		"meta": {"err": null, "logMessages": ["Program log: ok"]},
		"transaction": {"message": {
			"accountKeys": [
				"11111111111111111111111111111111",
				{"pubkey": "So11111111111111111111111111111111111111112"}
			],
			"instructions": [
				{"programIdIndex": 1, "accounts": [0], "data": "3Bxs4h24hBtQy9rw"}
			]
		}}
	}`)

	enriched, err := ParseInline(raw, "sigX", 555)
	if err != nil {
		t.Fatalf("ParseInline: %v", err)
	}
	if enriched.Failed {
		t.Error("Failed = true, want false")
	}
	if enriched.Signature != "sigX" || enriched.Slot != 555 {
		t.Errorf("tagged %s/%d, want sigX/555", enriched.Signature, enriched.Slot)
	}
	if len(enriched.AccountKeys) != 2 {
		t.Fatalf("account keys = %d, want 2", len(enriched.AccountKeys))
	}
	if len(enriched.Instructions) != 1 {
		t.Fatalf("instructions = %d, want 1", len(enriched.Instructions))
	}
	if !enriched.Instructions[0].ProgramID.Equals(enriched.AccountKeys[1]) {
		t.Error("instruction program id not resolved from account keys")
	}
	if len(enriched.Logs) != 1 {
		t.Errorf("logs = %d, want 1", len(enriched.Logs))
	}
}

func TestParseInlineFailedTransaction(t *testing.T) {
	raw := json.RawMessage(`{
		"meta": {"err": {"InstructionError": [0, "Custom"]}, "logMessages": ["Program log: boom"]},
		"transaction": {"message": {"accountKeys": [], "instructions": []}}
	}`)

	enriched, err := ParseInline(raw, "sigY", 1)
	if err != nil {
		t.Fatalf("ParseInline: %v", err)
	}
	if !enriched.Failed {
		t.Error("Failed = false, want true")
	}
}
