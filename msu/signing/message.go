package signing

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/betbot/msubot/msu/types"
)

// SignMessage 对登录挑战做 personal_sign（EIP-191）签名
func SignMessage(message string, privateKey *ecdsa.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", types.NewError(types.CodeMissingPrivateKey, "私钥为空")
	}
	return signHash(accounts.TextHash([]byte(message)), privateKey)
}

// PrivateKeyFromHex 从十六进制字符串解析私钥（可带 0x 前缀）
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, types.NewError(types.CodeMissingPrivateKey, "私钥未配置")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, types.WrapError(err, types.CodeInvalidParameters, "私钥格式错误")
	}
	return key, nil
}

// AddressFromKey 从私钥获取地址
func AddressFromKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}
