package signing

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github.com/betbot/msubot/msu/types"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// orderTypes 订单签名类型定义，字段顺序固定
var orderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	orderPrimaryType: {
		{Name: "isSeller", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "listingTime", Type: "uint256"},
		{Name: "expirationTime", Type: "uint256"},
		{Name: "tokenAddress", Type: "address"},
		{Name: "tokenAmount", Type: "uint256"},
		{Name: "nftAddress", Type: "address"},
		{Name: "nftTokenId", Type: "uint256"},
		{Name: "salt", Type: "uint256"},
	},
}

func domain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainId:           math.NewHexOrDecimal256(types.ChainID),
		VerifyingContract: VerifyingContract,
	}
}

// normalizeOrder 地址转小写、数值字段转整数，任一字段非法返回 INVALID_ORDER
func normalizeOrder(order *types.Order) (apitypes.TypedDataMessage, error) {
	if order == nil {
		return nil, types.NewError(types.CodeInvalidOrder, "订单为空")
	}

	// 场内按 isSeller=0 验签，挂单也一样；提交的 payload 仍带真实标志
	msg := apitypes.TypedDataMessage{"isSeller": big.NewInt(0)}

	addrs := []struct{ name, value string }{
		{"maker", order.Maker},
		{"tokenAddress", order.TokenAddress},
		{"nftAddress", order.NFTAddress},
	}
	for _, a := range addrs {
		if !common.IsHexAddress(a.value) {
			return nil, types.NewError(types.CodeInvalidOrder, "%s 不是合法地址: %q", a.name, a.value)
		}
		msg[a.name] = strings.ToLower(a.value)
	}

	nums := []struct{ name, value string }{
		{"listingTime", order.ListingTime},
		{"expirationTime", order.ExpirationTime},
		{"tokenAmount", order.TokenAmount},
		{"nftTokenId", order.NFTTokenID},
		{"salt", order.Salt},
	}
	for _, n := range nums {
		v, ok := new(big.Int).SetString(strings.TrimSpace(n.value), 10)
		if !ok || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
			return nil, types.NewError(types.CodeInvalidOrder, "%s 不是合法的 uint256: %q", n.name, n.value)
		}
		msg[n.name] = v
	}
	return msg, nil
}

// OrderHash 计算订单的 EIP712 摘要
func OrderHash(order *types.Order) ([]byte, error) {
	msg, err := normalizeOrder(order)
	if err != nil {
		return nil, err
	}
	typedData := apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: orderPrimaryType,
		Domain:      domain(),
		Message:     msg,
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, types.WrapError(err, types.CodeInvalidOrder, "计算订单哈希失败")
	}
	return hash, nil
}

// SignOrder 对订单做 EIP712 签名，返回 0x 前缀的 65 字节签名
// 相同输入得到相同签名（secp256k1 使用 RFC6979 确定性随机数）
func SignOrder(order *types.Order, privateKey *ecdsa.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", types.NewError(types.CodeMissingPrivateKey, "私钥为空")
	}
	hash, err := OrderHash(order)
	if err != nil {
		return "", err
	}
	return signHash(hash, privateKey)
}

func signHash(hash []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", errors.Wrap(err, "签名失败")
	}
	// r + s + v，v 调整为 27/28
	signature[crypto.RecoveryIDOffset] += 27
	return "0x" + common.Bytes2Hex(signature), nil
}
