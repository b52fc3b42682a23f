package data

import (
	"context"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// Items that only exist on legacy runtimes.
var (
	StakingStakers = storage.MapItem{Module: "Staking", Item: "Stakers", Hasher: keys.Blake2_256}
)

// keyspace addresses storage items in the current layout or, on legacy
// runtimes, by the hashed "Module Item" name.
type keyspace struct {
	legacy bool
}

func (k keyspace) value(v storage.ValueItem) keys.StorageKey {
	if k.legacy {
		return v.LegacyKey()
	}
	return v.Key()
}

func (k keyspace) entry(m storage.MapItem, encodedKey []byte) keys.StorageKey {
	if k.legacy {
		return m.LegacyKey(encodedKey)
	}
	return m.Key(encodedKey)
}

func accountBytes(a common.AccountID) []byte {
	return a[:]
}

// linkedAccountMap drains a legacy linked map keyed by account.
func linkedAccountMap[V any](ctx context.Context, r storage.Reader, m storage.MapItem, decodeValue storage.Decoder[V]) ([]storage.MapEntry[common.AccountID, V], error) {
	it := storage.NewLinkedMapIterator(r, m.Module, m.Item, accountBytes, scale.DecodeAccountID, decodeValue)
	return storage.CollectLinkedMap(ctx, it)
}

// decodeLegacyValidatorPrefs reads the commission of ValidatorPrefs.
func decodeLegacyValidatorPrefs(d *scale.Decoder) (uint64, error) {
	return d.CompactU64()
}

// DecodeLegacyNominations reads nominations without the suppressed flag.
// Linked map entries carry their links after the value, so the flag cannot
// be guessed from the remaining length.
func DecodeLegacyNominations(d *scale.Decoder) (Nominations, error) {
	var (
		n   Nominations
		err error
	)
	if n.Targets, err = scale.DecodeAccountIDs(d); err != nil {
		return n, err
	}
	n.SubmittedIn, err = d.U32()
	return n, err
}
