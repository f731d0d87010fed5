package events

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

type payloadBuilder struct {
	buf bytes.Buffer
}

func newPayload(eventName string) *payloadBuilder {
	b := &payloadBuilder{}
	disc := anchorDiscriminator(eventName)
	b.buf.Write(disc[:])
	return b
}

func (b *payloadBuilder) u8(v uint8) *payloadBuilder {
	b.buf.WriteByte(v)
	return b
}

func (b *payloadBuilder) u16(v uint16) *payloadBuilder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *payloadBuilder) u32(v uint32) *payloadBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *payloadBuilder) u64(v uint64) *payloadBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *payloadBuilder) i64(v int64) *payloadBuilder {
	return b.u64(uint64(v))
}

func (b *payloadBuilder) pubkey(pk solana.PublicKey) *payloadBuilder {
	b.buf.Write(pk.Bytes())
	return b
}

func (b *payloadBuilder) bytes32(v [32]byte) *payloadBuilder {
	b.buf.Write(v[:])
	return b
}

func (b *payloadBuilder) logLine() string {
	return programDataMarker + base64.StdEncoding.EncodeToString(b.buf.Bytes())
}

func testKey(tag byte) solana.PublicKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = tag
	}
	return solana.PublicKeyFromBytes(raw[:])
}

func TestDecodeGameCreated(t *testing.T) {
	authority := testKey(0xAA)
	line := newPayload("GameCreated").
		u64(7).
		pubkey(authority).
		i64(1700000000).
		logLine()

	d := NewDecoder(nil)
	records := d.Decode([]string{line}, "sig1", 42)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Signature != "sig1" || rec.Slot != 42 {
		t.Errorf("record tagged %q/%d, want sig1/42", rec.Signature, rec.Slot)
	}
	ev, ok := rec.Event.(GameCreated)
	if !ok {
		t.Fatalf("event type = %T, want GameCreated", rec.Event)
	}
	if ev.GameID != 7 {
		t.Errorf("GameID = %d, want 7", ev.GameID)
	}
	if !ev.Authority.Equals(authority) {
		t.Errorf("Authority = %s, want %s", ev.Authority, authority)
	}
	if ev.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", ev.Timestamp)
	}
}

func TestDecodePlayResolvedWin(t *testing.T) {
	user := testKey(0x01)
	session := testKey(0x02)
	var random [32]byte
	random[0] = 0xFF

	line := newPayload("PlayResolved").
		pubkey(user).
		u64(3).
		pubkey(session).
		u8(1).u64(99). // Some(prize_id)
		u8(1).u8(2).   // Some(prize_index)
		u8(1).u8(3).   // Some(tier legendary)
		u8(1).         // is_win
		bytes32(random).
		i64(1700000001).
		logLine()

	d := NewDecoder(nil)
	records := d.Decode([]string{line}, "sig2", 1)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	ev, ok := records[0].Event.(PlayResolved)
	if !ok {
		t.Fatalf("event type = %T, want PlayResolved", records[0].Event)
	}
	if !ev.IsWin {
		t.Error("IsWin = false, want true")
	}
	if ev.PrizeID == nil || *ev.PrizeID != 99 {
		t.Errorf("PrizeID = %v, want 99", ev.PrizeID)
	}
	if ev.Tier == nil || *ev.Tier != TierLegendary {
		t.Errorf("Tier = %v, want legendary", ev.Tier)
	}
	if ev.RandomValue != random {
		t.Error("RandomValue mismatch")
	}
}

func TestDecodePlayResolvedLoss(t *testing.T) {
	line := newPayload("PlayResolved").
		pubkey(testKey(0x01)).
		u64(3).
		pubkey(testKey(0x02)).
		u8(0). // None
		u8(0). // None
		u8(0). // None
		u8(0). // is_win false
		bytes32([32]byte{}).
		i64(1700000002).
		logLine()

	d := NewDecoder(nil)
	records := d.Decode([]string{line}, "sig3", 1)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	ev := records[0].Event.(PlayResolved)
	if ev.IsWin {
		t.Error("IsWin = true, want false")
	}
	if ev.PrizeID != nil || ev.PrizeIndex != nil || ev.Tier != nil {
		t.Error("loss should carry no prize fields")
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	line := newPayload("GameStatusUpdated").
		u64(5).
		u8(1).
		i64(1700000003).
		logLine()

	d := NewDecoder(nil)
	first := d.Decode([]string{line}, "sig", 9)
	second := d.Decode([]string{line}, "sig", 9)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("records = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0].Event.(GameStatusUpdated) != second[0].Event.(GameStatusUpdated) {
		t.Error("same bytes decoded to different records")
	}
}

func TestDecodeBase58Fallback(t *testing.T) {
	b := newPayload("NFTDelisted").
		pubkey(testKey(0x05)).
		pubkey(testKey(0x06)).
		i64(1700000004)
	line := programDataMarker + base58.Encode(b.buf.Bytes())

	d := NewDecoder(nil)
	records := d.Decode([]string{line}, "sig", 1)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if _, ok := records[0].Event.(NFTDelisted); !ok {
		t.Errorf("event type = %T, want NFTDelisted", records[0].Event)
	}
}

func TestDecodeSkipsBadLines(t *testing.T) {
	good := newPayload("GameStatusUpdated").u64(1).u8(0).i64(1).logLine()
	truncated := newPayload("GameStatusUpdated").u64(1).logLine()
	unknownDisc := programDataMarker + base64.StdEncoding.EncodeToString(
		bytes.Repeat([]byte{0xEE}, 24),
	)
	tooShort := programDataMarker + base64.StdEncoding.EncodeToString([]byte{1, 2, 3})

	logs := []string{
		"Program log: Instruction: UpdateGameStatus",
		truncated,
		unknownDisc,
		tooShort,
		programDataMarker + "!!!not-an-encoding!!!",
		good,
	}

	d := NewDecoder(nil)
	records := d.Decode(logs, "sig", 1)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (only the valid line)", len(records))
	}
	if _, ok := records[0].Event.(GameStatusUpdated); !ok {
		t.Errorf("event type = %T, want GameStatusUpdated", records[0].Event)
	}
}

func TestDecodeMultipleEventsOneTransaction(t *testing.T) {
	resolved := newPayload("PlayResolved").
		pubkey(testKey(0x01)).
		u64(3).
		pubkey(testKey(0x02)).
		u8(1).u64(9).
		u8(1).u8(0).
		u8(1).u8(0).
		u8(1).
		bytes32([32]byte{}).
		i64(10).
		logLine()
	claimed := newPayload("PrizeClaimed").
		pubkey(testKey(0x01)).
		u64(3).
		pubkey(testKey(0x02)).
		u64(9).
		u8(0).
		u8(0).
		pubkey(testKey(0x07)).
		i64(10).
		logLine()

	d := NewDecoder(nil)
	records := d.Decode([]string{resolved, claimed}, "sig", 1)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if _, ok := records[0].Event.(PlayResolved); !ok {
		t.Errorf("first event = %T, want PlayResolved", records[0].Event)
	}
	if _, ok := records[1].Event.(PrizeClaimed); !ok {
		t.Errorf("second event = %T, want PrizeClaimed", records[1].Event)
	}
}

func TestTierStrings(t *testing.T) {
	want := map[Tier]string{
		TierCommon:    "common",
		TierUncommon:  "uncommon",
		TierRare:      "rare",
		TierLegendary: "legendary",
	}
	for tier, s := range want {
		if tier.String() != s {
			t.Errorf("Tier(%d).String() = %q, want %q", tier, tier.String(), s)
		}
	}
	if Tier(9).Valid() {
		t.Error("Tier(9).Valid() = true, want false")
	}
}
