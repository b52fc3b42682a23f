package common

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

var ss58Prefix = []byte("SS58PRE")

const ss58ChecksumLen = 2

func ss58Checksum(data []byte) []byte {
	h, _ := blake2b.New512(nil)
	_, _ = h.Write(ss58Prefix)
	_, _ = h.Write(data)
	return h.Sum(nil)[:ss58ChecksumLen]
}

func encodeSS58Ident(ident uint16) []byte {
	if ident < 64 {
		return []byte{byte(ident)}
	}
	first := byte((ident&0b0000_0000_1111_1100)>>2) | 0b0100_0000
	second := byte(ident>>8) | byte((ident&0b0000_0000_0000_0011)<<6)
	return []byte{first, second}
}

// EncodeSS58 renders an account as an SS58 address under the given network prefix.
func EncodeSS58(a AccountID, ident uint16) string {
	payload := append(encodeSS58Ident(ident), a[:]...)
	payload = append(payload, ss58Checksum(payload)...)
	return base58.Encode(payload)
}

// DecodeSS58 parses an SS58 address, returning the account and its network prefix.
func DecodeSS58(s string) (AccountID, uint16, error) {
	var a AccountID
	raw := base58.Decode(s)
	if len(raw) == 0 {
		return a, 0, fmt.Errorf("ss58 %q: invalid base58", s)
	}

	var ident uint16
	identLen := 1
	switch {
	case raw[0] < 64:
		ident = uint16(raw[0])
	case raw[0] < 128:
		if len(raw) < 2 {
			return a, 0, fmt.Errorf("ss58 %q: truncated prefix", s)
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		ident = uint16(lower) | uint16(upper)<<8
		identLen = 2
	default:
		return a, 0, fmt.Errorf("ss58 %q: reserved prefix byte %d", s, raw[0])
	}

	if len(raw) != identLen+len(a)+ss58ChecksumLen {
		return a, 0, fmt.Errorf("ss58 %q: unexpected length %d", s, len(raw))
	}
	body := raw[:identLen+len(a)]
	if !bytes.Equal(ss58Checksum(body), raw[len(body):]) {
		return a, 0, fmt.Errorf("ss58 %q: checksum mismatch", s)
	}
	copy(a[:], body[identLen:])
	return a, ident, nil
}
