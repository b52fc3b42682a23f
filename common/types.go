package common

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Balance is an unsigned 128-bit chain balance. Wrapper around uint256.Int
// to allow for custom JSON marshaling.
type Balance struct {
	uint256.Int
}

func NewBalance(v uint64) Balance {
	return Balance{*uint256.NewInt(v)}
}

// BalanceFromInt copies v into a Balance.
func BalanceFromInt(v *uint256.Int) Balance {
	return Balance{*v}
}

// Big returns a pointer to a copy of the underlying integer, safe to mutate.
func (b Balance) Big() *uint256.Int {
	return b.Int.Clone()
}

func (b Balance) String() string {
	return b.Int.Dec()
}

func (b Balance) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Balance) UnmarshalText(text []byte) error {
	if err := b.Int.SetFromDecimal(string(text)); err != nil {
		return fmt.Errorf("balance %q: %w", text, err)
	}
	return nil
}

func (b Balance) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, b.String())), nil
}

func (b *Balance) UnmarshalJSON(text []byte) error {
	return b.UnmarshalText([]byte(strings.Trim(string(text), "\"")))
}

// AccountID is a 32-byte account public key.
type AccountID [32]byte

// ParseAccountID accepts either a 0x-prefixed hex public key or an SS58
// address of any network prefix.
func ParseAccountID(s string) (AccountID, error) {
	var a AccountID
	if strings.HasPrefix(s, "0x") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return a, fmt.Errorf("account %q: %w", s, err)
		}
		if len(raw) != len(a) {
			return a, fmt.Errorf("account %q: expected %d bytes, got %d", s, len(a), len(raw))
		}
		copy(a[:], raw)
		return a, nil
	}
	a, _, err := DecodeSS58(s)
	return a, err
}

// MustParseAccountID is like ParseAccountID but panics on error.
func MustParseAccountID(s string) AccountID {
	a, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AccountFromUint64 derives a synthetic account whose first eight bytes hold
// v in little endian. Used for fixtures and small test networks.
func AccountFromUint64(v uint64) AccountID {
	var a AccountID
	for i := 0; i < 8; i++ {
		a[i] = byte(v >> (8 * i))
	}
	return a
}

func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountID) String() string {
	return a.Hex()
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash is a 32-byte block hash.
type Hash [32]byte

func HashFromHex(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("hash %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("hash %q: expected %d bytes, got %d", s, len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
