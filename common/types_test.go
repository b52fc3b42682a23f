package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const aliceHex = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

func TestBalance(t *testing.T) {
	var v Balance

	textRef := []byte("340282366920938463463374607431768211455")
	err := v.UnmarshalText(textRef)
	require.NoError(t, err)
	textRoundTrip, err := v.MarshalText()
	require.NoError(t, err)
	require.Equal(t, textRef, textRoundTrip)

	jsonRef := []byte("\"22222222222222222222\"")
	err = json.Unmarshal(jsonRef, &v)
	require.NoError(t, err)
	jsonRoundTrip, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, jsonRef, jsonRoundTrip)

	require.Error(t, v.UnmarshalText([]byte("-1")))
}

func TestSS58(t *testing.T) {
	alice := MustParseAccountID(aliceHex)

	require.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", EncodeSS58(alice, 42))
	require.Equal(t, "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", EncodeSS58(alice, 0))

	for _, ident := range []uint16{0, 2, 42, 63, 64, 255, 1284, 16383} {
		addr := EncodeSS58(alice, ident)
		decoded, gotIdent, err := DecodeSS58(addr)
		require.NoError(t, err, "ident %d", ident)
		require.Equal(t, ident, gotIdent)
		require.Equal(t, alice, decoded)
	}

	parsed, err := ParseAccountID("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)
	require.Equal(t, alice, parsed)

	_, _, err = DecodeSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	require.Error(t, err, "corrupted checksum must be rejected")
}

func TestParseAccountIDErrors(t *testing.T) {
	_, err := ParseAccountID("0x1234")
	require.Error(t, err)
	_, err = ParseAccountID("0xzz")
	require.Error(t, err)
	_, err = ParseAccountID("not-base58-0OIl")
	require.Error(t, err)
}

func TestAccountFromUint64(t *testing.T) {
	a := AccountFromUint64(0x0102)
	require.Equal(t, byte(0x02), a[0])
	require.Equal(t, byte(0x01), a[1])
	require.NotEqual(t, AccountFromUint64(1), AccountFromUint64(2))
}

func TestDedup(t *testing.T) {
	require.Equal(t, []int{3, 1, 2}, Dedup([]int{3, 1, 3, 2, 1}))
}
