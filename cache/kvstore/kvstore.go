// Package kvstore is a small byte-keyed store used to cache scraped
// snapshots between runs, with typed CBOR helpers on top.
package kvstore

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
)

// KVStore is the raw byte interface. Typed access goes through
// FetchTypedValue, PutTypedValue and GetFromCacheOrCall.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Close() error
}

// instrumented is implemented by stores that report cache metrics.
type instrumented interface {
	cacheName() string
	cacheMetrics() *metrics.StorageMetrics
	cacheLogger() *log.Logger
}

// CacheKey is a canonical CBOR encoding of a namespace and its parameters.
type CacheKey []byte

var canonical = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// GenerateCacheKey derives a key from a namespace and its parameters. Equal
// parameters always give equal keys.
func GenerateCacheKey(namespace string, params ...interface{}) CacheKey {
	raw, err := canonical.Marshal([]interface{}{namespace, params})
	if err != nil {
		panic(fmt.Sprintf("kvstore: cache key for %s: %v", namespace, err))
	}
	return CacheKey(raw)
}

// Pretty renders the key for logs: decoded CBOR when possible, hex otherwise,
// truncated to 100 characters.
func (k CacheKey) Pretty() string {
	var parsed interface{}
	s := fmt.Sprintf("%x", []byte(k))
	if err := cbor.Unmarshal(k, &parsed); err == nil {
		s = fmt.Sprintf("%+v", parsed)
	}
	if len(s) > 100 {
		s = s[:95] + "[...]"
	}
	return s
}

var errNoSuchKey = errors.New("no such key")

// IsMiss reports whether err is a regular cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, errNoSuchKey)
}

func countRead(store KVStore, status metrics.CacheReadStatus) {
	if s, ok := store.(instrumented); ok && s.cacheMetrics() != nil {
		s.cacheMetrics().LocalCacheReads(s.cacheName(), status).Inc()
	}
}

func countWrite(store KVStore, ok bool) {
	if s, isInstrumented := store.(instrumented); isInstrumented && s.cacheMetrics() != nil {
		s.cacheMetrics().LocalCacheWrites(s.cacheName(), ok).Inc()
	}
}

func loggerOf(store KVStore) *log.Logger {
	if s, ok := store.(instrumented); ok {
		return s.cacheLogger()
	}
	return nil
}

// FetchTypedValue decodes the value under key into value. A missing key
// gives an error for which IsMiss is true.
func FetchTypedValue[Value any](store KVStore, key CacheKey, value *Value) error {
	present, err := store.Has(key)
	switch {
	case err != nil:
		countRead(store, metrics.CacheReadStatusError)
		return err
	case !present:
		countRead(store, metrics.CacheReadStatusMiss)
		return errNoSuchKey
	}
	raw, err := store.Get(key)
	if err != nil {
		countRead(store, metrics.CacheReadStatusError)
		return fmt.Errorf("reading %s: %w", key.Pretty(), err)
	}
	if err := cbor.Unmarshal(raw, value); err != nil {
		countRead(store, metrics.CacheReadStatusBadValue)
		return fmt.Errorf("decoding %s into %T: %w", key.Pretty(), value, err)
	}
	countRead(store, metrics.CacheReadStatusHit)
	return nil
}

// PutTypedValue CBOR-encodes value and stores it under key.
func PutTypedValue[Value any](store KVStore, key CacheKey, value *Value) error {
	raw, err := cbor.Marshal(value)
	if err == nil {
		err = store.Put(key, raw)
	}
	countWrite(store, err == nil)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key.Pretty(), err)
	}
	return nil
}

// Policy controls how GetFromCacheOrCall uses the store.
type Policy struct {
	// Read allows serving the value from the store.
	Read bool
	// Write stores computed values.
	Write bool
}

// GetFromCacheOrCall returns the cached value under key when the policy
// allows reading and a decodable entry exists. Otherwise it calls compute
// and, when the policy allows writing, stores the result. Store failures
// are logged and never returned. hit reports whether the value was cached.
// A nil store disables both reading and writing.
func GetFromCacheOrCall[Value any](store KVStore, policy Policy, key CacheKey, compute func() (*Value, error)) (value *Value, hit bool, err error) {
	if store == nil {
		policy = Policy{}
	}
	logger := loggerOf(store)

	if policy.Read {
		var cached Value
		err := FetchTypedValue(store, key, &cached)
		if err == nil {
			return &cached, true, nil
		}
		if !IsMiss(err) && logger != nil {
			logger.Warn("unusable cache entry, recomputing", "key", key.Pretty(), "err", err)
		}
	}

	value, err = compute()
	if err != nil {
		return nil, false, err
	}
	if policy.Write {
		if err := PutTypedValue(store, key, value); err != nil && logger != nil {
			logger.Warn("cache write failed", "key", key.Pretty(), "err", err)
		}
	}
	return value, false, nil
}
