package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
	"github.com/substrate-debug-kit/offline-election/storage/testutil"
)

var (
	bonded = storage.MapItem{Module: "Staking", Item: "Bonded", Hasher: keys.Twox64Concat}
	ledger = storage.MapItem{Module: "Staking", Item: "Ledger", Hasher: keys.Blake2_128Concat}
	count  = storage.ValueItem{Module: "Staking", Item: "ValidatorCount"}
)

func TestReadAbsentAndUndecodable(t *testing.T) {
	ctx := context.Background()
	state := testutil.NewMemoryState()

	_, found, err := storage.Read(ctx, state, count.Key(), scale.DecodeU32)
	require.NoError(t, err)
	require.False(t, found)

	// A u32 needs four bytes.
	state.Put(count.Key(), []byte{1, 2})
	_, found, err = storage.Read(ctx, state, count.Key(), scale.DecodeU32)
	require.NoError(t, err)
	require.False(t, found, "undecodable value reads as absent")

	_, _, err = storage.ReadStrict(ctx, state, count.Key(), scale.DecodeU32)
	var decodeErr *storage.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Equal(t, count.Key(), decodeErr.Key)

	state.Put(count.Key(), scale.EncodeU32(297))
	v, found, err := storage.Read(ctx, state, count.Key(), scale.DecodeU32)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 297, v)

	def, err := storage.ReadOr(ctx, state, storage.ValueItem{Module: "Staking", Item: "CurrentEra"}.Key(), scale.DecodeU32, 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, def)
}

func TestEnumerateMap(t *testing.T) {
	ctx := context.Background()
	state := testutil.NewMemoryState()

	stashes := []common.AccountID{common.AccountFromUint64(1), common.AccountFromUint64(2), common.AccountFromUint64(3)}
	for i, stash := range stashes {
		controller := common.AccountFromUint64(uint64(100 + i))
		state.Put(bonded.Key(stash[:]), controller[:])
	}
	// Unrelated item in the same module must not show up.
	state.Put(ledger.Key(stashes[0][:]), []byte{0})

	entries, err := storage.EnumerateMap(ctx, state, bonded, scale.DecodeAccountID, scale.DecodeAccountID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	got := map[common.AccountID]common.AccountID{}
	for _, e := range entries {
		got[e.Key] = e.Value
	}
	for i, stash := range stashes {
		require.Equal(t, common.AccountFromUint64(uint64(100+i)), got[stash])
	}
}

func TestEnumerateMapCollectsDecodeErrors(t *testing.T) {
	ctx := context.Background()
	state := testutil.NewMemoryState()

	good := common.AccountFromUint64(1)
	state.Put(bonded.Key(good[:]), good[:])
	bad1 := common.AccountFromUint64(2)
	state.Put(bonded.Key(bad1[:]), []byte{1, 2, 3})
	// Key too short to be an account.
	state.Put(bonded.Key([]byte{9}), good[:])

	entries, err := storage.EnumerateMap(ctx, state, bonded, scale.DecodeAccountID, scale.DecodeAccountID)
	require.Error(t, err)
	require.Len(t, entries, 1, "decodable entries are still returned")
	require.Equal(t, good, entries[0].Key)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	for _, e := range merr.Errors {
		var decodeErr *storage.DecodeError
		require.True(t, errors.As(e, &decodeErr))
	}
}

func TestEnumerateDoubleMap(t *testing.T) {
	ctx := context.Background()
	state := testutil.NewMemoryState()
	stakers := storage.DoubleMapItem{Module: "Staking", Item: "ErasStakers", Hasher1: keys.Twox64Concat, Hasher2: keys.Twox64Concat}

	v := common.AccountFromUint64(5)
	state.Put(stakers.Key(scale.EncodeU32(10), v[:]), scale.EncodeU32(1))
	state.Put(stakers.Key(scale.EncodeU32(11), v[:]), scale.EncodeU32(2))

	entries, err := storage.EnumerateDoubleMap(ctx, state, stakers, scale.EncodeU32(11), scale.DecodeAccountID, scale.DecodeU32)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, v, entries[0].Key)
	require.EqualValues(t, 2, entries[0].Value)
}

func TestMapKeys(t *testing.T) {
	ctx := context.Background()
	state := testutil.NewMemoryState()
	a := common.AccountFromUint64(1)
	state.Put(bonded.Key(a[:]), []byte{})

	ks, err := storage.MapKeys(ctx, state, bonded, scale.DecodeAccountID)
	require.NoError(t, err)
	require.Equal(t, []common.AccountID{a}, ks)
}
