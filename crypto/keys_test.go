package crypto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	addr := DeriveAddress("alice")
	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, AddressHRP+"1"))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, decoded)

	fromHex, err := DecodeAddress("0x" + addr.Hex())
	require.NoError(t, err)
	require.Equal(t, addr, fromHex)
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	_, err := DecodeAddress("nhb1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnzs23v9")
	require.Error(t, err)
}

func TestAddressJSON(t *testing.T) {
	type payload struct {
		Lender Address `json:"lender"`
	}
	addr := DeriveAddress("bob")
	raw, err := json.Marshal(payload{Lender: addr})
	require.NoError(t, err)

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, addr, out.Lender)

	require.NoError(t, json.Unmarshal([]byte(`{"lender":""}`), &out))
	require.True(t, out.Lender.IsZero())
}

func TestGeneratedKeyAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address(), restored.PubKey().Address())
	require.False(t, key.PubKey().Address().IsZero())
}
