package types

// 交易所固定常量
const (
	// ChainID Nexon 链 ID
	ChainID int64 = 68414

	// TokenAddress 支付代币合约
	TokenAddress = "0x07E49Ad54FcD23F6e7B911C2068F0148d1827c08"
	// NFTAddress 商品 NFT 合约
	NFTAddress = "0x43DCff2A0cedcd5e10e6f1c18b503498dDCe60d5"

	// WeiPerToken 代币精度 10^18
	WeiPerToken = "1000000000000000000"
	// MaxTokenAmount 人类单位数量上限，防止单位填错
	MaxTokenAmount = 1_000_000_000

	// MarketExpireDays 买单过期天数
	MarketExpireDays = 3
	// SellExpireDays 卖单过期天数
	SellExpireDays = 14

	// BlockedMessage 冷却期内购买时交易所返回的提示
	BlockedMessage = "purchase blocked: the product is not ready for sale yet"

	// WalletTypeMetamask 登录时提交的钱包类型
	WalletTypeMetamask = "WALLET_TYPE_METAMASK"

	// CreatedAtLayout 上架时间格式
	CreatedAtLayout = "2006-01-02T15:04:05Z"
)

// OrderType 下单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "market" // 抢购（并发竞速）
	OrderTypeLimit  OrderType = "limit"  // 出价
	OrderTypeSell   OrderType = "sell"   // 上架
)

// Valid 是否为支持的下单类型
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeSell:
		return true
	}
	return false
}
