package signing

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/msubot/msu/types"
)

// hardhat 默认账户 #0
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testOrder() *types.Order {
	return &types.Order{
		Maker:          testAddr,
		ListingTime:    "1714564800",
		ExpirationTime: "1714824000",
		TokenAddress:   types.TokenAddress,
		TokenAmount:    "2500000000000000000",
		NFTAddress:     types.NFTAddress,
		NFTTokenID:     "12345",
		Salt:           "1714564800123",
	}
}

func recoverSigner(t *testing.T, hash []byte, sig string) common.Address {
	t.Helper()
	raw := common.FromHex(sig)
	require.Len(t, raw, 65)
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash, raw)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)
	assert.Equal(t, testAddr, AddressFromKey(key).Hex())

	_, err = PrivateKeyFromHex("  ")
	assert.Equal(t, types.CodeMissingPrivateKey, types.CodeOf(err))

	_, err = PrivateKeyFromHex("0xnothex")
	assert.Equal(t, types.CodeInvalidParameters, types.CodeOf(err))
}

func TestSignOrderDeterministic(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	sig1, err := SignOrder(testOrder(), key)
	require.NoError(t, err)
	sig2, err := SignOrder(testOrder(), key)
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)
	assert.True(t, strings.HasPrefix(sig1, "0x"))
	assert.Len(t, sig1, 2+130)

	v := common.FromHex(sig1)[64]
	assert.True(t, v == 27 || v == 28, "v=%d", v)
}

func TestSignOrderRecoversMaker(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	order := testOrder()
	sig, err := SignOrder(order, key)
	require.NoError(t, err)

	hash, err := OrderHash(order)
	require.NoError(t, err)
	assert.Equal(t, testAddr, recoverSigner(t, hash, sig).Hex())
}

func TestSignOrderAddressCaseInsensitive(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	lower := testOrder()
	lower.Maker = strings.ToLower(lower.Maker)
	lower.TokenAddress = strings.ToLower(lower.TokenAddress)

	a, err := SignOrder(testOrder(), key)
	require.NoError(t, err)
	b, err := SignOrder(lower, key)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSignOrderAlwaysSignsAsBuyer(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	buy := testOrder()
	sell := testOrder()
	sell.IsSeller = true

	h1, err := OrderHash(buy)
	require.NoError(t, err)
	h2, err := OrderHash(sell)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	s1, err := SignOrder(buy, key)
	require.NoError(t, err)
	s2, err := SignOrder(sell, key)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.True(t, sell.IsSeller, "签名不改写订单上的标志")
}

func TestSignOrderInvalid(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(o *types.Order)
	}{
		{"bad maker", func(o *types.Order) { o.Maker = "0x1234" }},
		{"bad nft address", func(o *types.Order) { o.NFTAddress = "not-an-address" }},
		{"non numeric amount", func(o *types.Order) { o.TokenAmount = "2.5" }},
		{"negative expiry", func(o *types.Order) { o.ExpirationTime = "-1" }},
		{"empty salt", func(o *types.Order) { o.Salt = "" }},
		{"overflow token id", func(o *types.Order) { o.NFTTokenID = "1" + strings.Repeat("0", 80) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder()
			tt.mutate(o)
			_, err := SignOrder(o, key)
			require.Error(t, err)
			assert.Equal(t, types.CodeInvalidOrder, types.CodeOf(err))
		})
	}

	_, err = SignOrder(nil, key)
	assert.Equal(t, types.CodeInvalidOrder, types.CodeOf(err))
	_, err = SignOrder(testOrder(), nil)
	assert.Equal(t, types.CodeMissingPrivateKey, types.CodeOf(err))
}

func TestSignMessage(t *testing.T) {
	key, err := PrivateKeyFromHex(testKey)
	require.NoError(t, err)

	msg := "Welcome to MSU!\nNonce: 42"
	sig, err := SignMessage(msg, key)
	require.NoError(t, err)

	again, err := SignMessage(msg, key)
	require.NoError(t, err)
	assert.Equal(t, sig, again)

	assert.Equal(t, testAddr, recoverSigner(t, accounts.TextHash([]byte(msg)), sig).Hex())
}
