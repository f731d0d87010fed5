package chain

import (
	"encoding/binary"
	"fmt"
)

// Program accounts are borsh-encoded behind an 8-byte account
// discriminator and allocated with trailing padding, so the account reader
// tolerates leftover bytes where the event codec would not.

const accountDiscriminatorLen = 8

type accountReader struct {
	buf []byte
	off int
	err error
}

func newAccountReader(data []byte) (*accountReader, error) {
	if len(data) < accountDiscriminatorLen {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	return &accountReader{buf: data, off: accountDiscriminatorLen}, nil
}

func (r *accountReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *accountReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("truncated account: need %d bytes at offset %d", n, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *accountReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *accountReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *accountReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *accountReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *accountReader) boolean() bool {
	return r.u8() != 0
}

func (r *accountReader) bytes32() [32]byte {
	var out [32]byte
	b := r.take(32)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

// str reads a borsh string: u32 length prefix, then utf-8 bytes.
func (r *accountReader) str() string {
	n := int(r.u32())
	if r.err != nil {
		return ""
	}
	if n > len(r.buf)-r.off {
		r.fail("string length %d exceeds remaining %d bytes", n, len(r.buf)-r.off)
		return ""
	}
	return string(r.take(n))
}

// decodeGameAccount parses raw game account data.
func decodeGameAccount(data []byte) (*GameAccount, error) {
	r, err := newAccountReader(data)
	if err != nil {
		return nil, err
	}

	var g GameAccount
	copy(g.Authority[:], r.take(32))
	g.GameID = r.u64()
	g.Name = r.str()
	g.Description = r.str()
	g.ImageURL = r.str()
	copy(g.TokenMint[:], r.take(32))
	g.CostUSD = r.u64()
	copy(g.Treasury[:], r.take(32))
	g.PrizeCount = r.u8()
	for i := range g.PrizeProbabilities {
		g.PrizeProbabilities[i] = r.u16()
	}
	g.TotalSupplyRemaining = r.u32()
	g.TotalPlays = r.u64()
	g.IsActive = r.boolean()
	g.LastRandomValue = r.bytes32()

	if r.err != nil {
		return nil, fmt.Errorf("decode game account: %w", r.err)
	}
	return &g, nil
}

// decodePrizeAccount parses raw prize account data.
func decodePrizeAccount(data []byte) (*PrizeAccount, error) {
	r, err := newAccountReader(data)
	if err != nil {
		return nil, err
	}

	var p PrizeAccount
	copy(p.Game[:], r.take(32))
	p.PrizeIndex = r.u8()
	p.PrizeID = r.u64()
	p.Name = r.str()
	p.Description = r.str()
	p.ImageURL = r.str()
	p.MetadataURI = r.str()
	p.PhysicalSKU = r.str()
	p.Tier = r.u8()
	p.ProbabilityBP = r.u16()
	p.CostUSD = r.u64()
	p.WeightGrams = r.u32()
	p.LengthHundredths = r.u16()
	p.WidthHundredths = r.u16()
	p.HeightHundredths = r.u16()
	p.SupplyTotal = r.u32()
	p.SupplyRemaining = r.u32()

	if r.err != nil {
		return nil, fmt.Errorf("decode prize account: %w", r.err)
	}
	return &p, nil
}
