package scale

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// Encoder appends SCALE values to a buffer.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.U8(1)
	}
	return e.U8(0)
}

func (e *Encoder) U16(v uint16) *Encoder {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return e
}

func (e *Encoder) U32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

func (e *Encoder) U64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

func (e *Encoder) U128(v *uint256.Int) *Encoder {
	be := v.Bytes32()
	for i := 31; i >= 16; i-- {
		e.buf = append(e.buf, be[i])
	}
	return e
}

func (e *Encoder) Balance(v common.Balance) *Encoder {
	return e.U128(&v.Int)
}

// Compact appends a compact-encoded integer. Values above 128 bits panic.
func (e *Encoder) Compact(v *uint256.Int) *Encoder {
	if v.IsUint64() {
		return e.CompactU64(v.Uint64())
	}
	n := (v.BitLen() + 7) / 8
	if n > 16 {
		panic(fmt.Sprintf("scale: compact integer of %d bytes exceeds 128 bits", n))
	}
	e.buf = append(e.buf, byte((n-4)<<2)|0b11)
	be := v.Bytes32()
	for i := 31; i >= 32-n; i-- {
		e.buf = append(e.buf, be[i])
	}
	return e
}

func (e *Encoder) CompactU64(v uint64) *Encoder {
	switch {
	case v < 1<<6:
		e.buf = append(e.buf, byte(v<<2))
	case v < 1<<14:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v<<2)|0b01)
	case v < 1<<30:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v<<2)|0b10)
	default:
		n := (bits.Len64(v) + 7) / 8
		if n < 4 {
			n = 4
		}
		e.buf = append(e.buf, byte((n-4)<<2)|0b11)
		for i := 0; i < n; i++ {
			e.buf = append(e.buf, byte(v>>(8*i)))
		}
	}
	return e
}

func (e *Encoder) CompactBalance(v common.Balance) *Encoder {
	return e.Compact(&v.Int)
}

func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// ByteVec appends a length-prefixed byte vector.
func (e *Encoder) ByteVec(b []byte) *Encoder {
	e.CompactU64(uint64(len(b)))
	return e.Raw(b)
}

func (e *Encoder) AccountID(a common.AccountID) *Encoder {
	return e.Raw(a[:])
}

// VecLen appends a collection length prefix.
func (e *Encoder) VecLen(n int) *Encoder {
	return e.CompactU64(uint64(n))
}

// EncodeU32 returns the SCALE encoding of a u32, e.g. an era index key.
func EncodeU32(v uint32) []byte {
	return NewEncoder().U32(v).Bytes()
}
