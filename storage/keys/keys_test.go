package keys

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestTwoX128Vectors(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out string
	}{
		{"System", "26aa394eea5630e07c48ae0c9558cef7"},
		{"Account", "b99d880ec681799c0cf30e8886371da9"},
		{"Balances", "c2261276cc9d1f8598ea4b6a74b15c2f"},
		{"TotalIssuance", "57c875e4cff74148e4628f264b974c80"},
		{"Timestamp", "f0c365c3cf59d671eb72da0e7a4113c4"},
		{"Now", "9f1f0515f462cdcf84e0f1d6045dfcbb"},
	} {
		h := TwoX128([]byte(tc.in))
		require.Equal(t, tc.out, hex.EncodeToString(h[:]), tc.in)
	}
}

func TestValueKey(t *testing.T) {
	key := ValueKey("Balances", "TotalIssuance")
	require.Equal(t, "0xc2261276cc9d1f8598ea4b6a74b15c2f57c875e4cff74148e4628f264b974c80", key.Hex())
	require.Len(t, key, PrefixLen)
	require.True(t, key.HasPrefix(ModulePrefix("Balances")))
	require.False(t, key.HasPrefix(ModulePrefix("System")))
}

func TestMapKeyConcatRecovery(t *testing.T) {
	sub := mustHex(t, "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	prefix := ValueKey("System", "Account")

	for _, h := range []Hasher{Identity, Twox64Concat, Blake2_128Concat} {
		full := MapKey("System", "Account", h, sub)
		require.Len(t, full, PrefixLen+h.HashLen()+len(sub), h.String())
		recovered, err := MapSubKey(full, prefix, h)
		require.NoError(t, err, h.String())
		require.Equal(t, sub, recovered, h.String())
	}

	for _, h := range []Hasher{Twox128, Twox256, Blake2_128, Blake2_256} {
		full := MapKey("System", "Account", h, sub)
		require.Len(t, full, PrefixLen+h.HashLen(), h.String())
		_, err := MapSubKey(full, prefix, h)
		require.Error(t, err, h.String())
	}
}

func TestMapSubKeyWrongPrefix(t *testing.T) {
	full := MapKey("Staking", "Bonded", Twox64Concat, []byte{1, 2, 3})
	_, err := MapSubKey(full, ValueKey("Staking", "Ledger"), Twox64Concat)
	require.Error(t, err)

	_, err = Twox64Concat.Strip([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDoubleMapKey(t *testing.T) {
	era := []byte{5, 0, 0, 0}
	who := []byte{9, 9, 9}
	full := DoubleMapKey("Staking", "ErasStakers", Twox64Concat, era, Twox64Concat, who)
	prefix := DoubleMapPrefix("Staking", "ErasStakers", Twox64Concat, era)
	require.True(t, full.HasPrefix(prefix))

	recovered, err := MapSubKey(full, prefix, Twox64Concat)
	require.NoError(t, err)
	require.Equal(t, who, recovered)
}

func TestDeterministicAndDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, module := range []string{"Staking", "Session", "Balances", "PhragmenElection"} {
		for _, item := range []string{"Validators", "Nominators", "Ledger", "Members", "Voting"} {
			for _, sub := range [][]byte{{0}, {1}, {0, 0}, {1, 2, 3, 4}} {
				for _, h := range []Hasher{Identity, Twox64Concat, Blake2_128Concat, Twox128, Blake2_256} {
					k1 := MapKey(module, item, h, sub)
					k2 := MapKey(module, item, h, sub)
					require.Equal(t, k1, k2)
					id := module + "/" + item + "/" + hex.EncodeToString(sub) + "/" + h.String()
					if prev, ok := seen[string(k1)]; ok {
						// Identity and the concat hashers never collide with each other
						// because the hash lengths differ, so any repeat is a real collision.
						t.Fatalf("collision between %s and %s", prev, id)
					}
					seen[string(k1)] = id
				}
			}
		}
	}
}

func TestLegacyKeys(t *testing.T) {
	require.Equal(t, TwoX128([]byte("Staking Validators")), [16]byte(LegacyValueKey("Staking", "Validators")))
	require.Len(t, LegacyMapKey("Staking", "Nominators", []byte{1}), 32)
	require.Equal(t, Blake2b256([]byte("head of Staking Nominators")), [32]byte(LinkedMapHeadKey("Staking", "Nominators")))
	require.NotEqual(t, LegacyMapKey("Staking", "Nominators", []byte{1}), LegacyMapKey("Staking", "Nominators", []byte{2}))
}

func TestParseHasher(t *testing.T) {
	for h := Identity; h <= Blake2_128Concat; h++ {
		parsed, err := ParseHasher(h.String())
		require.NoError(t, err)
		require.Equal(t, h, parsed)
	}
	_, err := ParseHasher("sha256")
	require.Error(t, err)
}
