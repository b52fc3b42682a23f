// Package keys derives storage keys for runtime storage items.
package keys

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// ModulePrefixLen is the length of a module prefix.
	ModulePrefixLen = 16
	// PrefixLen is the length of a module/item prefix.
	PrefixLen = 2 * ModulePrefixLen
)

// StorageKey addresses one storage cell.
type StorageKey []byte

func (k StorageKey) Hex() string {
	return "0x" + hex.EncodeToString(k)
}

func (k StorageKey) String() string {
	return k.Hex()
}

// HasPrefix reports whether k starts with prefix.
func (k StorageKey) HasPrefix(prefix StorageKey) bool {
	return bytes.HasPrefix(k, prefix)
}

// Clone returns a copy of k that does not alias the original.
func (k StorageKey) Clone() StorageKey {
	return append(StorageKey(nil), k...)
}

// ParseStorageKey decodes a 0x-prefixed (or bare) hex key.
func ParseStorageKey(s string) (StorageKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("storage key %q: %w", s, err)
	}
	return raw, nil
}

// ModulePrefix is the key prefix shared by all items of a module.
func ModulePrefix(module string) StorageKey {
	h := TwoX128([]byte(module))
	return h[:]
}

// ValueKey is the key of a plain storage value, and the prefix of a map.
func ValueKey(module, item string) StorageKey {
	m := TwoX128([]byte(module))
	i := TwoX128([]byte(item))
	key := make(StorageKey, 0, PrefixLen)
	key = append(key, m[:]...)
	return append(key, i[:]...)
}

// MapKey is the key of one entry of a storage map.
func MapKey(module, item string, hasher Hasher, encodedKey []byte) StorageKey {
	return append(ValueKey(module, item), hasher.Hash(encodedKey)...)
}

// DoubleMapKey is the key of one entry of a storage double map.
func DoubleMapKey(module, item string, h1 Hasher, k1 []byte, h2 Hasher, k2 []byte) StorageKey {
	return append(DoubleMapPrefix(module, item, h1, k1), h2.Hash(k2)...)
}

// DoubleMapPrefix is the prefix of all double map entries sharing the first key.
func DoubleMapPrefix(module, item string, h1 Hasher, k1 []byte) StorageKey {
	return MapKey(module, item, h1, k1)
}

// MapSubKey recovers the encoded map key from a full map entry key.
func MapSubKey(full StorageKey, prefix StorageKey, hasher Hasher) ([]byte, error) {
	if !full.HasPrefix(prefix) {
		return nil, fmt.Errorf("key %s is not under prefix %s", full, prefix)
	}
	return hasher.Strip(full[len(prefix):])
}

// Legacy (pre-metadata v9) key derivation. Items are addressed by the
// concatenated "Module Item" string instead of separate prefix hashes.

func legacyName(module, item string) []byte {
	return []byte(module + " " + item)
}

// LegacyValueKey is twox128("Module Item").
func LegacyValueKey(module, item string) StorageKey {
	h := TwoX128(legacyName(module, item))
	return h[:]
}

// LegacyMapKey is blake2_256("Module Item" ++ encodedKey).
func LegacyMapKey(module, item string, encodedKey []byte) StorageKey {
	h := Blake2b256(append(legacyName(module, item), encodedKey...))
	return h[:]
}

// LinkedMapHeadKey addresses the head pointer of a legacy linked map.
func LinkedMapHeadKey(module, item string) StorageKey {
	h := Blake2b256([]byte("head of " + module + " " + item))
	return h[:]
}
