package keys

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Hasher selects how a map sub-key is hashed after the item prefix.
type Hasher uint8

const (
	Identity Hasher = iota
	Twox64Concat
	Twox128
	Twox256
	Blake2_128
	Blake2_256
	Blake2_128Concat
)

// String returns the runtime metadata name of the hasher.
func (h Hasher) String() string {
	switch h {
	case Identity:
		return "Identity"
	case Twox64Concat:
		return "Twox64Concat"
	case Twox128:
		return "Twox128"
	case Twox256:
		return "Twox256"
	case Blake2_128:
		return "Blake2_128"
	case Blake2_256:
		return "Blake2_256"
	case Blake2_128Concat:
		return "Blake2_128Concat"
	default:
		return fmt.Sprintf("Hasher(%d)", uint8(h))
	}
}

// ParseHasher is the inverse of Hasher.String. It is case-insensitive.
func ParseHasher(s string) (Hasher, error) {
	for h := Identity; h <= Blake2_128Concat; h++ {
		if strings.EqualFold(h.String(), s) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown hasher %q", s)
}

// HashLen is the length of the hash part of the hasher's output.
func (h Hasher) HashLen() int {
	switch h {
	case Identity:
		return 0
	case Twox64Concat:
		return 8
	case Twox128, Blake2_128, Blake2_128Concat:
		return 16
	case Twox256, Blake2_256:
		return 32
	default:
		panic(fmt.Sprintf("keys: unsupported hasher %d", h))
	}
}

// Reversible reports whether the raw key can be recovered from the hashed form.
func (h Hasher) Reversible() bool {
	return h == Identity || h == Twox64Concat || h == Blake2_128Concat
}

// Hash applies the hasher to an encoded key.
func (h Hasher) Hash(data []byte) []byte {
	switch h {
	case Identity:
		return append([]byte(nil), data...)
	case Twox64Concat:
		out := TwoX64(data)
		return append(out[:], data...)
	case Twox128:
		out := TwoX128(data)
		return out[:]
	case Twox256:
		out := TwoX256(data)
		return out[:]
	case Blake2_128:
		out := Blake2b128(data)
		return out[:]
	case Blake2_256:
		out := blake2b.Sum256(data)
		return out[:]
	case Blake2_128Concat:
		out := Blake2b128(data)
		return append(out[:], data...)
	default:
		panic(fmt.Sprintf("keys: unsupported hasher %d", h))
	}
}

// Strip removes the hash part from a hashed key suffix and returns the raw
// encoded key that follows it.
func (h Hasher) Strip(hashed []byte) ([]byte, error) {
	if !h.Reversible() {
		return nil, fmt.Errorf("hasher %s does not preserve the raw key", h)
	}
	n := h.HashLen()
	if len(hashed) < n {
		return nil, fmt.Errorf("hashed key of %d bytes is shorter than %s hash (%d bytes)", len(hashed), h, n)
	}
	return hashed[n:], nil
}

func twox(data []byte, seeds int) []byte {
	out := make([]byte, 0, 8*seeds)
	for seed := 0; seed < seeds; seed++ {
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

// TwoX64 is xxhash64 with seed 0, little endian.
func TwoX64(data []byte) [8]byte {
	var out [8]byte
	copy(out[:], twox(data, 1))
	return out
}

// TwoX128 concatenates xxhash64 with seeds 0 and 1, little endian.
func TwoX128(data []byte) [16]byte {
	var out [16]byte
	copy(out[:], twox(data, 2))
	return out
}

func TwoX256(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], twox(data, 4))
	return out
}

func Blake2b128(data []byte) [16]byte {
	var out [16]byte
	h, _ := blake2b.New(16, nil)
	_, _ = h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}
