package events

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// reader walks a borsh-encoded event payload with little-endian fixed-width
// fields. The first decode error sticks; every later read returns a zero
// value, so layouts read as a straight sequence of typed fields.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("truncated payload: need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// i64 reads a signed 64-bit timestamp. Reading through uint64 and casting
// keeps the top bit intact instead of misreading it as a huge positive value.
func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) boolean() bool {
	switch r.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail("invalid bool tag at offset %d", r.off-1)
		return false
	}
}

func (r *reader) pubkey() solana.PublicKey {
	b := r.take(32)
	if b == nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *reader) bytes32() [32]byte {
	var out [32]byte
	b := r.take(32)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

func (r *reader) tier() Tier {
	t := Tier(r.u8())
	if r.err == nil && !t.Valid() {
		r.fail("invalid tier tag %d", t)
	}
	return t
}

// Borsh options are a single presence byte followed by the value.

func (r *reader) optionU64() *uint64 {
	if !r.optionTag() {
		return nil
	}
	v := r.u64()
	return &v
}

func (r *reader) optionU8() *uint8 {
	if !r.optionTag() {
		return nil
	}
	v := r.u8()
	return &v
}

func (r *reader) optionTier() *Tier {
	if !r.optionTag() {
		return nil
	}
	v := r.tier()
	return &v
}

func (r *reader) optionTag() bool {
	switch r.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail("invalid option tag at offset %d", r.off-1)
		return false
	}
}

// finish rejects payloads with trailing bytes so a layout mismatch surfaces
// as a decode error instead of silently dropped fields.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("payload has %d trailing bytes", len(r.buf)-r.off)
	}
	return nil
}
