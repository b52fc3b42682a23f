// Package storage defines access to chain key-value state and typed helpers
// for reading runtime storage items from it.
package storage

import (
	"context"
	"fmt"

	"github.com/substrate-debug-kit/offline-election/storage/keys"
)

// KeyValue is one raw storage entry.
type KeyValue struct {
	Key   keys.StorageKey
	Value []byte
}

// Reader is read access to chain state at one fixed block. It is implemented
// by a remote client bound to a block and by snapshots.
type Reader interface {
	// Get fetches a single value. found is false if the key is absent.
	Get(ctx context.Context, key keys.StorageKey) (value []byte, found bool, err error)

	// Pairs returns all entries whose key starts with prefix, ordered by key.
	Pairs(ctx context.Context, prefix keys.StorageKey) ([]KeyValue, error)
}

// DecodeError reports a storage value or key that could not be decoded into
// the expected type.
type DecodeError struct {
	Key keys.StorageKey
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValueItem is a plain storage value.
type ValueItem struct {
	Module string
	Item   string
}

func (v ValueItem) Key() keys.StorageKey {
	return keys.ValueKey(v.Module, v.Item)
}

// LegacyKey addresses the value on runtimes with metadata v8 or older.
func (v ValueItem) LegacyKey() keys.StorageKey {
	return keys.LegacyValueKey(v.Module, v.Item)
}

func (v ValueItem) String() string {
	return v.Module + "." + v.Item
}

// MapItem is a storage map.
type MapItem struct {
	Module string
	Item   string
	Hasher keys.Hasher
}

func (m MapItem) Prefix() keys.StorageKey {
	return keys.ValueKey(m.Module, m.Item)
}

func (m MapItem) Key(encodedKey []byte) keys.StorageKey {
	return keys.MapKey(m.Module, m.Item, m.Hasher, encodedKey)
}

// LegacyKey addresses an entry on runtimes with metadata v8 or older.
func (m MapItem) LegacyKey(encodedKey []byte) keys.StorageKey {
	return keys.LegacyMapKey(m.Module, m.Item, encodedKey)
}

func (m MapItem) String() string {
	return m.Module + "." + m.Item
}

// DoubleMapItem is a storage double map.
type DoubleMapItem struct {
	Module  string
	Item    string
	Hasher1 keys.Hasher
	Hasher2 keys.Hasher
}

// Prefix is the prefix of all entries sharing the first key.
func (m DoubleMapItem) Prefix(k1 []byte) keys.StorageKey {
	return keys.DoubleMapPrefix(m.Module, m.Item, m.Hasher1, k1)
}

func (m DoubleMapItem) Key(k1, k2 []byte) keys.StorageKey {
	return keys.DoubleMapKey(m.Module, m.Item, m.Hasher1, k1, m.Hasher2, k2)
}

func (m DoubleMapItem) String() string {
	return m.Module + "." + m.Item
}
