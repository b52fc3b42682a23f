package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
)

type record struct {
	Chain string
	Pairs [][2][]byte
}

func testLogger(t *testing.T) *log.Logger {
	logger, err := log.NewLogger("kvstore-test", os.Stdout, log.FmtLogfmt, log.LevelError)
	require.NoError(t, err)
	return logger
}

func TestGenerateCacheKeyDeterministic(t *testing.T) {
	a := GenerateCacheKey("snapshot", "kusama", []byte{1, 2}, []string{"Staking"})
	b := GenerateCacheKey("snapshot", "kusama", []byte{1, 2}, []string{"Staking"})
	c := GenerateCacheKey("snapshot", "polkadot", []byte{1, 2}, []string{"Staking"})
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Contains(t, a.Pretty(), "snapshot")
}

func TestPogrebRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenKVStore(context.Background(), testLogger(t), "test", filepath.Join(dir, "cache"), metrics.NewDefaultStorageMetrics())
	require.NoError(t, err)

	key := GenerateCacheKey("snapshot", "kusama")
	in := record{Chain: "kusama", Pairs: [][2][]byte{{{1}, {2, 3}}, {{4}, {5}}}}
	require.NoError(t, PutTypedValue(store, key, &in))

	var out record
	require.NoError(t, FetchTypedValue(store, key, &out))
	require.Equal(t, in, out)
	require.NoError(t, store.Close())

	// Reopen and read again.
	store, err = OpenKVStore(context.Background(), testLogger(t), "test", filepath.Join(dir, "cache"), nil)
	require.NoError(t, err)
	defer store.Close()
	out = record{}
	require.NoError(t, FetchTypedValue(store, key, &out))
	require.Equal(t, in, out)
}

func TestGetFromCacheOrCall(t *testing.T) {
	store := NewMemoryKVStore(testLogger(t))
	key := GenerateCacheKey("value")
	calls := 0
	compute := func() (*record, error) {
		calls++
		return &record{Chain: "polkadot"}, nil
	}

	// Read-only policy never writes.
	v, hit, err := GetFromCacheOrCall(store, Policy{Read: true}, key, compute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "polkadot", v.Chain)
	has, _ := store.Has(key)
	require.False(t, has)

	_, hit, err = GetFromCacheOrCall(store, Policy{Read: true, Write: true}, key, compute)
	require.NoError(t, err)
	require.False(t, hit)
	_, hit, err = GetFromCacheOrCall(store, Policy{Read: true, Write: true}, key, compute)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 2, calls)

	// Write-only policy refreshes.
	_, hit, err = GetFromCacheOrCall(store, Policy{Write: true}, key, compute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 3, calls)
}

func TestGetFromCacheOrCallBadValue(t *testing.T) {
	store := NewMemoryKVStore(testLogger(t))
	key := GenerateCacheKey("value")
	require.NoError(t, store.Put(key, []byte{0xff, 0x00, 0x13}))

	v, hit, err := GetFromCacheOrCall(store, Policy{Read: true, Write: true}, key, func() (*record, error) {
		return &record{Chain: "fresh"}, nil
	})
	require.NoError(t, err, "corrupt entries fall back to the backing call")
	require.False(t, hit)
	require.Equal(t, "fresh", v.Chain)

	var out record
	require.NoError(t, FetchTypedValue(store, key, &out), "corrupt entry is overwritten")
	require.Equal(t, "fresh", out.Chain)
}

func TestGetFromCacheOrCallPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := GetFromCacheOrCall(NewMemoryKVStore(testLogger(t)), Policy{Read: true, Write: true}, GenerateCacheKey("x"), func() (*record, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	_, _, err = GetFromCacheOrCall[record](nil, Policy{Read: true}, GenerateCacheKey("x"), func() (*record, error) {
		return &record{}, nil
	})
	require.NoError(t, err, "a nil cache is allowed")
}

func TestFetchMiss(t *testing.T) {
	var out record
	err := FetchTypedValue(NewMemoryKVStore(testLogger(t)), GenerateCacheKey("missing"), &out)
	require.True(t, IsMiss(err))
}

func TestOpenInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store, err := OpenKVStore(ctx, testLogger(t), "test", filepath.Join(t.TempDir(), "cache"), nil)
	require.NoError(t, err)

	// Usable once the background open completes.
	p := store.(*pogrebKVStore)
	require.Eventually(t, func() bool { return p.db.Load() != nil }, 5*time.Second, 10*time.Millisecond)
	key := GenerateCacheKey("late")
	require.NoError(t, PutTypedValue(store, key, &record{Chain: "kusama"}))
	var out record
	require.NoError(t, FetchTypedValue(store, key, &out))
	require.Equal(t, "kusama", out.Chain)
	require.NoError(t, store.Close())
}

func TestPruneIndexBackups(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	for _, name := range []string{"lock", "main.pix", "index.pmt", "00000.psg", "main.pix.bac.bac"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	s := &pogrebKVStore{path: dir, logger: testLogger(t)}
	s.pruneIndexBackups()

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"lock", "00000.psg"}, names)

	moved, err := os.ReadDir(dir + ".backup")
	require.NoError(t, err)
	require.Len(t, moved, 3)
}
