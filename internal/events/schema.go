package events

import (
	"crypto/sha256"
)

// discriminatorLen is the fixed byte prefix identifying the event type.
const discriminatorLen = 8

// eventSchema binds an event name to its discriminator and wire layout.
type eventSchema struct {
	name          string
	discriminator [discriminatorLen]byte
	decode        func(payload []byte) (Event, error)
}

// schemas is the precomputed dispatch table, one entry per event the
// programs publish. Payloads whose discriminator matches none of these are
// skipped for forward compatibility.
var schemas []eventSchema

func init() {
	register := func(name string, decode func([]byte) (Event, error)) {
		schemas = append(schemas, eventSchema{
			name:          name,
			discriminator: anchorDiscriminator(name),
			decode:        decode,
		})
	}

	register("GameCreated", decodeGameCreated)
	register("PrizeAdded", decodePrizeAdded)
	register("GamePlayInitiated", decodeGamePlayInitiated)
	register("GameStatusUpdated", decodeGameStatusUpdated)
	register("SupplyReplenished", decodeSupplyReplenished)
	register("TreasuryWithdrawn", decodeTreasuryWithdrawn)
	register("PlayResolved", decodePlayResolved)
	register("PrizeClaimed", decodePrizeClaimed)
	register("NFTListed", decodeNFTListed)
	register("NFTDelisted", decodeNFTDelisted)
	register("NFTSold", decodeNFTSold)
	register("PriceUpdated", decodePriceUpdated)
	register("PlatformFeesWithdrawn", decodePlatformFeesWithdrawn)
}

// anchorDiscriminator derives the 8-byte event tag the same way the program
// framework does: the leading bytes of sha256("event:<Name>").
func anchorDiscriminator(name string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var out [discriminatorLen]byte
	copy(out[:], sum[:discriminatorLen])
	return out
}

func decodeGameCreated(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := GameCreated{
		GameID:    r.u64(),
		Authority: r.pubkey(),
		Timestamp: r.i64(),
	}
	return ev, r.finish()
}

func decodePrizeAdded(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := PrizeAdded{
		GameID:        r.u64(),
		PrizeIndex:    r.u8(),
		PrizeID:       r.u64(),
		ProbabilityBP: r.u16(),
		SupplyTotal:   r.u32(),
		Timestamp:     r.i64(),
	}
	return ev, r.finish()
}

func decodeGamePlayInitiated(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := GamePlayInitiated{
		User:        r.pubkey(),
		GameID:      r.u64(),
		TokenAmount: r.u64(),
		Session:     r.pubkey(),
		Timestamp:   r.i64(),
	}
	return ev, r.finish()
}

func decodeGameStatusUpdated(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := GameStatusUpdated{
		GameID:    r.u64(),
		IsActive:  r.boolean(),
		Timestamp: r.i64(),
	}
	return ev, r.finish()
}

func decodeSupplyReplenished(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := SupplyReplenished{
		GameID:     r.u64(),
		PrizeID:    r.u64(),
		PrizeIndex: r.u8(),
		NewSupply:  r.u32(),
		Timestamp:  r.i64(),
	}
	return ev, r.finish()
}

func decodeTreasuryWithdrawn(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := TreasuryWithdrawn{
		GameID:      r.u64(),
		Amount:      r.u64(),
		Destination: r.pubkey(),
		Timestamp:   r.i64(),
	}
	return ev, r.finish()
}

func decodePlayResolved(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := PlayResolved{
		User:        r.pubkey(),
		GameID:      r.u64(),
		Session:     r.pubkey(),
		PrizeID:     r.optionU64(),
		PrizeIndex:  r.optionU8(),
		Tier:        r.optionTier(),
		IsWin:       r.boolean(),
		RandomValue: r.bytes32(),
		Timestamp:   r.i64(),
	}
	return ev, r.finish()
}

func decodePrizeClaimed(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := PrizeClaimed{
		User:       r.pubkey(),
		GameID:     r.u64(),
		Session:    r.pubkey(),
		PrizeID:    r.u64(),
		PrizeIndex: r.u8(),
		Tier:       r.tier(),
		NFTMint:    r.pubkey(),
		Timestamp:  r.i64(),
	}
	return ev, r.finish()
}

func decodeNFTListed(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := NFTListed{
		Seller:    r.pubkey(),
		NFTMint:   r.pubkey(),
		Price:     r.u64(),
		Timestamp: r.i64(),
	}
	return ev, r.finish()
}

func decodeNFTDelisted(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := NFTDelisted{
		Seller:    r.pubkey(),
		NFTMint:   r.pubkey(),
		Timestamp: r.i64(),
	}
	return ev, r.finish()
}

func decodeNFTSold(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := NFTSold{
		Seller:    r.pubkey(),
		Buyer:     r.pubkey(),
		NFTMint:   r.pubkey(),
		Price:     r.u64(),
		Fee:       r.u64(),
		Timestamp: r.i64(),
	}
	return ev, r.finish()
}

func decodePriceUpdated(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := PriceUpdated{
		NFTMint:   r.pubkey(),
		OldPrice:  r.u64(),
		NewPrice:  r.u64(),
		Timestamp: r.i64(),
	}
	return ev, r.finish()
}

func decodePlatformFeesWithdrawn(payload []byte) (Event, error) {
	r := newReader(payload)
	ev := PlatformFeesWithdrawn{
		Amount:      r.u64(),
		Destination: r.pubkey(),
		Timestamp:   r.i64(),
	}
	return ev, r.finish()
}
