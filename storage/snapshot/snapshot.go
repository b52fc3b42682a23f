// Package snapshot materializes chain state at one block into memory.
package snapshot

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/tidwall/btree"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
)

// ErrSealed is returned when injecting into a snapshot that was already read.
var ErrSealed = errors.New("snapshot: sealed after first read")

// Snapshot is an ordered key-value view of chain state at one block. It
// accepts injections until the first read and is read-only afterwards.
type Snapshot struct {
	// Chain is the runtime spec name of the chain.
	Chain string
	// At is the block the state was captured at.
	At common.Hash
	// Modules covered by the snapshot; empty means all state.
	Modules []string

	data   btree.Map[string, []byte]
	sealed atomic.Bool
}

var _ storage.Reader = (*Snapshot)(nil)

// New returns an empty, unsealed snapshot.
func New(chain string, at common.Hash, modules []string) *Snapshot {
	return &Snapshot{Chain: chain, At: at, Modules: modules}
}

func (s *Snapshot) insert(kvs []storage.KeyValue) {
	for _, kv := range kvs {
		s.data.Set(string(kv.Key), kv.Value)
	}
}

// Inject sets raw entries, overriding existing values.
func (s *Snapshot) Inject(kvs ...storage.KeyValue) error {
	if s.sealed.Load() {
		return ErrSealed
	}
	s.insert(kvs)
	return nil
}

// Get implements storage.Reader.
func (s *Snapshot) Get(_ context.Context, key keys.StorageKey) ([]byte, bool, error) {
	s.sealed.Store(true)
	v, ok := s.data.Get(string(key))
	return v, ok, nil
}

// Pairs implements storage.Reader.
func (s *Snapshot) Pairs(_ context.Context, prefix keys.StorageKey) ([]storage.KeyValue, error) {
	s.sealed.Store(true)
	return s.scan(string(prefix)), nil
}

func (s *Snapshot) scan(prefix string) []storage.KeyValue {
	var out []storage.KeyValue
	s.data.Ascend(prefix, func(k string, v []byte) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		out = append(out, storage.KeyValue{Key: keys.StorageKey(k), Value: v})
		return true
	})
	return out
}

// All returns every entry ordered by key.
func (s *Snapshot) All() []storage.KeyValue {
	s.sealed.Store(true)
	return s.scan("")
}

// Len is the number of entries.
func (s *Snapshot) Len() int {
	return s.data.Len()
}
