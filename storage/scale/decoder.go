// Package scale implements the subset of the SCALE codec needed to read
// staking and election storage items.
package scale

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// ErrUnexpectedEOF is returned when the input ends before a value is complete.
var ErrUnexpectedEOF = errors.New("scale: unexpected end of input")

// Decoder reads SCALE values from a byte slice.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining is the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Finish fails if any input is left unread.
func (d *Decoder) Finish() error {
	if n := d.Remaining(); n != 0 {
		return fmt.Errorf("scale: %d trailing bytes", n)
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) U8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Bool() (bool, error) {
	b, err := d.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("scale: invalid bool byte %d", b)
	}
}

func (d *Decoder) U16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) U32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) U64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// U128 reads a little endian 128-bit unsigned integer.
func (d *Decoder) U128() (*uint256.Int, error) {
	b, err := d.take(16)
	if err != nil {
		return nil, err
	}
	var be [16]byte
	for i := range b {
		be[15-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be[:]), nil
}

// Balance reads a u128 balance.
func (d *Decoder) Balance() (common.Balance, error) {
	v, err := d.U128()
	if err != nil {
		return common.Balance{}, err
	}
	return common.BalanceFromInt(v), nil
}

// Compact reads a compact-encoded unsigned integer of up to 128 bits.
func (d *Decoder) Compact() (*uint256.Int, error) {
	first, err := d.U8()
	if err != nil {
		return nil, err
	}
	switch first & 0b11 {
	case 0b00:
		return uint256.NewInt(uint64(first >> 2)), nil
	case 0b01:
		second, err := d.U8()
		if err != nil {
			return nil, err
		}
		return uint256.NewInt(uint64(binary.LittleEndian.Uint16([]byte{first, second}) >> 2)), nil
	case 0b10:
		rest, err := d.take(3)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint32([]byte{first, rest[0], rest[1], rest[2]})
		return uint256.NewInt(uint64(v >> 2)), nil
	default:
		n := int(first>>2) + 4
		if n > 16 {
			return nil, fmt.Errorf("scale: compact integer of %d bytes exceeds 128 bits", n)
		}
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		be := make([]byte, n)
		for i := range b {
			be[n-1-i] = b[i]
		}
		return new(uint256.Int).SetBytes(be), nil
	}
}

// CompactU64 reads a compact integer that must fit in 64 bits.
func (d *Decoder) CompactU64() (uint64, error) {
	v, err := d.Compact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("scale: compact integer %s overflows u64", v.Dec())
	}
	return v.Uint64(), nil
}

// CompactBalance reads a Compact<u128>.
func (d *Decoder) CompactBalance() (common.Balance, error) {
	v, err := d.Compact()
	if err != nil {
		return common.Balance{}, err
	}
	return common.BalanceFromInt(v), nil
}

// Len reads a compact collection length, bounded by the remaining input.
func (d *Decoder) Len() (int, error) {
	n, err := d.CompactU64()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.Remaining()) {
		return 0, fmt.Errorf("scale: collection length %d exceeds remaining %d bytes", n, d.Remaining())
	}
	return int(n), nil
}

// Bytes reads a length-prefixed byte vector.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	return d.take(n)
}

// Fixed reads exactly n bytes.
func (d *Decoder) Fixed(n int) ([]byte, error) {
	return d.take(n)
}

func (d *Decoder) AccountID() (common.AccountID, error) {
	var a common.AccountID
	b, err := d.take(len(a))
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// Option reads the Option discriminant; item is only called for Some.
func (d *Decoder) Option(item func(*Decoder) error) (bool, error) {
	tag, err := d.U8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, item(d)
	default:
		return false, fmt.Errorf("scale: invalid option tag %d", tag)
	}
}

// Vec reads a compact length followed by that many items.
func Vec[T any](d *Decoder, item func(*Decoder) (T, error)) ([]T, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := item(d)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Decode runs fn over the whole of buf and rejects trailing bytes.
func Decode[T any](buf []byte, fn func(*Decoder) (T, error)) (T, error) {
	d := NewDecoder(buf)
	v, err := fn(d)
	if err != nil {
		return v, err
	}
	return v, d.Finish()
}

// Common item decoders.

func DecodeAccountID(d *Decoder) (common.AccountID, error) { return d.AccountID() }

func DecodeU32(d *Decoder) (uint32, error) { return d.U32() }

func DecodeBalance(d *Decoder) (common.Balance, error) { return d.Balance() }

func DecodeAccountIDs(d *Decoder) ([]common.AccountID, error) {
	return Vec(d, DecodeAccountID)
}
