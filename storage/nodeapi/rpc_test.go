package nodeapi_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/nodeapi"
	"github.com/substrate-debug-kit/offline-election/storage/nodeapi/nodetest"
	"github.com/substrate-debug-kit/offline-election/storage/testutil"
)

func fixture() *testutil.MemoryState {
	state := testutil.NewMemoryState()
	for i := byte(0); i < 5; i++ {
		state.Put(keys.MapKey("Staking", "Validators", keys.Twox64Concat, []byte{i}), []byte{i, i})
	}
	state.Put(keys.ValueKey("Staking", "ValidatorCount"), []byte{})
	return state
}

func TestRPCStateApiLite(t *testing.T) {
	ctx := context.Background()
	node := nodetest.New(fixture(), "kusama")
	api := node.Dial(t)

	head, err := api.FinalizedHead(ctx)
	require.NoError(t, err)
	require.Equal(t, node.Head, head)

	hash, err := api.BlockHash(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, node.Head, hash)
	_, err = api.BlockHash(ctx, 99)
	require.Error(t, err)

	version, err := api.RuntimeVersion(ctx, head)
	require.NoError(t, err)
	require.Equal(t, "kusama", version.SpecName)
	require.EqualValues(t, 9000, version.SpecVersion)

	value, found, err := api.Storage(ctx, keys.MapKey("Staking", "Validators", keys.Twox64Concat, []byte{3}), head)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{3, 3}, value)

	empty, found, err := api.Storage(ctx, keys.ValueKey("Staking", "ValidatorCount"), head)
	require.NoError(t, err)
	require.True(t, found, "empty values are present")
	require.Empty(t, empty)

	_, found, err = api.Storage(ctx, keys.ValueKey("Staking", "Nope"), head)
	require.NoError(t, err)
	require.False(t, found)

	meta, err := api.Metadata(ctx, head)
	require.NoError(t, err)
	mv, err := nodeapi.MetadataVersion(meta)
	require.NoError(t, err)
	require.EqualValues(t, 14, mv)
}

func TestMetadataVersion(t *testing.T) {
	v, err := nodeapi.MetadataVersion([]byte{0x6d, 0x65, 0x74, 0x61, 0x08, 0xff})
	require.NoError(t, err)
	require.EqualValues(t, nodeapi.LegacyMetadataVersion, v)

	_, err = nodeapi.MetadataVersion([]byte("meta"))
	require.Error(t, err)
	_, err = nodeapi.MetadataVersion([]byte{0, 0, 0, 0, 14})
	require.Error(t, err)
}

func TestRPCPairsAndKeysPaged(t *testing.T) {
	ctx := context.Background()
	node := nodetest.New(fixture(), "kusama")
	api := node.Dial(t)
	prefix := keys.ValueKey("Staking", "Validators")

	pairs, err := api.Pairs(ctx, prefix, node.Head)
	require.NoError(t, err)
	require.Len(t, pairs, 5)

	page, err := api.KeysPaged(ctx, prefix, 2, nil, node.Head)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, pairs[0].Key, page[0])

	next, err := api.KeysPaged(ctx, prefix, 2, page[1], node.Head)
	require.NoError(t, err)
	require.Equal(t, []keys.StorageKey{pairs[2].Key, pairs[3].Key}, next)
}

func TestRPCStorageBatch(t *testing.T) {
	ctx := context.Background()
	node := nodetest.New(fixture(), "kusama")
	api := node.Dial(t)

	ks := []keys.StorageKey{
		keys.MapKey("Staking", "Validators", keys.Twox64Concat, []byte{0}),
		keys.ValueKey("Staking", "Missing"),
		keys.MapKey("Staking", "Validators", keys.Twox64Concat, []byte{4}),
	}
	values, err := api.StorageBatch(ctx, ks, node.Head)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0, 0}, nil, {4, 4}}, values)
}

func TestRPCTransportErrors(t *testing.T) {
	ctx := context.Background()
	node := nodetest.New(fixture(), "kusama")
	node.RefusePairs = true
	api := node.Dial(t)

	_, err := api.Pairs(ctx, nil, node.Head)
	var transportErr *nodeapi.TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, "state_getPairs", transportErr.Method)

	_, err = api.RuntimeVersion(ctx, common.Hash{1})
	require.Error(t, err, "unknown block")

	_, err = nodeapi.Dial(ctx, "ws://127.0.0.1:1", 0, nil)
	require.True(t, errors.As(err, &transportErr), "unreachable nodes fail fast")
}
