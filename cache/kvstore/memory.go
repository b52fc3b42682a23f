package kvstore

import (
	"sync"

	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
)

type memoryKVStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	logger *log.Logger
}

var _ KVStore = (*memoryKVStore)(nil)

func (s *memoryKVStore) cacheName() string                     { return "memory" }
func (s *memoryKVStore) cacheMetrics() *metrics.StorageMetrics { return nil }
func (s *memoryKVStore) cacheLogger() *log.Logger              { return s.logger }

// NewMemoryKVStore returns a KVStore that lives only as long as the process.
func NewMemoryKVStore(logger *log.Logger) KVStore {
	return &memoryKVStore{data: map[string][]byte{}, logger: logger}
}

func (s *memoryKVStore) Has(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *memoryKVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[string(key)], nil
}

func (s *memoryKVStore) Put(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *memoryKVStore) Close() error {
	return nil
}
