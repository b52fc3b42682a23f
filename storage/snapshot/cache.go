package snapshot

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/substrate-debug-kit/offline-election/cache/kvstore"
	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage"
)

// CachePolicy selects how a builder uses the snapshot cache.
type CachePolicy int

const (
	// CacheDisabled never touches the cache.
	CacheDisabled CachePolicy = iota
	// CacheUseIfPresent loads a cached snapshot when one exists.
	CacheUseIfPresent
	// CacheForceRefresh always scrapes, then overwrites the cached copy.
	CacheForceRefresh
)

func (p CachePolicy) String() string {
	switch p {
	case CacheDisabled:
		return "disabled"
	case CacheUseIfPresent:
		return "use_if_present"
	case CacheForceRefresh:
		return "force_refresh"
	default:
		return fmt.Sprintf("CachePolicy(%d)", int(p))
	}
}

// ParseCachePolicy is the inverse of CachePolicy.String; "" is CacheDisabled.
func ParseCachePolicy(s string) (CachePolicy, error) {
	switch s {
	case "", "disabled":
		return CacheDisabled, nil
	case "use_if_present":
		return CacheUseIfPresent, nil
	case "force_refresh":
		return CacheForceRefresh, nil
	default:
		return CacheDisabled, fmt.Errorf("unknown cache policy %q", s)
	}
}

// Version of the cached record layout. Records with another version are
// treated as corrupt.
const recordVersion = 1

// record is the cached form of a scraped snapshot, before injections.
type record struct {
	Version uint16   `cbor:"v"`
	Chain   string   `cbor:"chain"`
	At      []byte   `cbor:"at"`
	Modules []string `cbor:"modules"`
	Keys    [][]byte `cbor:"keys"`
	Values  [][]byte `cbor:"values"`
}

// CacheError describes a cached snapshot that could not be used.
type CacheError struct {
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("snapshot cache: %v", e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func cacheKey(chain string, at common.Hash, modules []string) kvstore.CacheKey {
	return kvstore.GenerateCacheKey("snapshot", chain, at[:], modules)
}

func newRecord(chain string, at common.Hash, modules []string, pairs []storage.KeyValue) *record {
	r := &record{
		Version: recordVersion,
		Chain:   chain,
		At:      append([]byte(nil), at[:]...),
		Modules: modules,
		Keys:    make([][]byte, len(pairs)),
		Values:  make([][]byte, len(pairs)),
	}
	for i, kv := range pairs {
		r.Keys[i] = kv.Key
		r.Values[i] = kv.Value
	}
	return r
}

func (r *record) validate(chain string, at common.Hash, modules []string) error {
	switch {
	case r.Version != recordVersion:
		return &CacheError{fmt.Errorf("record version %d, expected %d", r.Version, recordVersion)}
	case r.Chain != chain:
		return &CacheError{fmt.Errorf("record for chain %q, expected %q", r.Chain, chain)}
	case !bytes.Equal(r.At, at[:]):
		return &CacheError{fmt.Errorf("record for block %x, expected %s", r.At, at)}
	case !slices.Equal(r.Modules, modules):
		return &CacheError{fmt.Errorf("record for modules %v, expected %v", r.Modules, modules)}
	case len(r.Keys) != len(r.Values):
		return &CacheError{fmt.Errorf("record has %d keys but %d values", len(r.Keys), len(r.Values))}
	}
	return nil
}

func (r *record) snapshot(at common.Hash) *Snapshot {
	s := New(r.Chain, at, r.Modules)
	for i := range r.Keys {
		s.data.Set(string(r.Keys[i]), r.Values[i])
	}
	return s
}
