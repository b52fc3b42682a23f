// Package testutil provides in-memory chain state fixtures for tests.
package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// MemoryState is an in-memory storage.Reader.
type MemoryState struct {
	mu   sync.Mutex
	data map[string][]byte

	// Gets counts single-key reads, Scans counts prefix reads.
	Gets  int
	Scans int
}

var _ storage.Reader = (*MemoryState)(nil)

func NewMemoryState() *MemoryState {
	return &MemoryState{data: map[string][]byte{}}
}

func (m *MemoryState) Put(key keys.StorageKey, value []byte) *MemoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = value
	return m
}

// PutEncoded stores the bytes produced by an encoder.
func (m *MemoryState) PutEncoded(key keys.StorageKey, enc *scale.Encoder) *MemoryState {
	return m.Put(key, enc.Bytes())
}

func (m *MemoryState) Delete(key keys.StorageKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
}

func (m *MemoryState) Get(_ context.Context, key keys.StorageKey) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	v, ok := m.data[string(key)]
	return v, ok, nil
}

func (m *MemoryState) Pairs(_ context.Context, prefix keys.StorageKey) ([]storage.KeyValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scans++
	var out []storage.KeyValue
	for k, v := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, storage.KeyValue{Key: keys.StorageKey(k), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

// All returns every entry ordered by key.
func (m *MemoryState) All() []storage.KeyValue {
	out, _ := m.Pairs(context.Background(), nil)
	return out
}

// Len is the number of stored entries.
func (m *MemoryState) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// NewTestLogger returns a logger that only prints errors.
func NewTestLogger(t *testing.T, module string) *log.Logger {
	logger, err := log.NewLogger(module, &testWriter{t}, log.FmtLogfmt, log.LevelError)
	require.NoError(t, err, "log.NewLogger")
	return logger
}

type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
