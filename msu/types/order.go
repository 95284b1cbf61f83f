package types

// Order 交易所订单（提交时与签名一并发送）
// 数值字段均为十进制字符串
type Order struct {
	IsSeller       bool   `json:"isSeller"`
	Maker          string `json:"maker"`
	ListingTime    string `json:"listingTime"`    // 秒
	ExpirationTime string `json:"expirationTime"` // 秒
	TokenAddress   string `json:"tokenAddress"`
	TokenAmount    string `json:"tokenAmount"` // wei
	NFTAddress     string `json:"nftAddress"`
	NFTTokenID     string `json:"nftTokenId"`
	Salt           string `json:"salt"` // 毫秒时间戳
}

// OrderParams 构建订单的参数
// TokenAmount 优先；否则使用 Amount（人类单位，会乘以 10^18）
type OrderParams struct {
	NFTTokenID  string
	Amount      string
	TokenAmount string
	CreatedAtTs int64 // 上架时间（秒），仅抢购使用
}

// SignedOrder 提交给交易所的请求体
type SignedOrder struct {
	Order     *Order `json:"order"`
	OrderSign string `json:"orderSign"`
}

// OrderRequest 外部下单请求
type OrderRequest struct {
	NFTTokenID       string    `json:"nftTokenId" form:"nft_token_id"`
	OrderType        OrderType `json:"orderType" form:"order_type"`
	Amount           string    `json:"amount,omitempty" form:"amount"`
	PriceWei         string    `json:"priceWei,omitempty" form:"price_wei"`
	TokenAmount      string    `json:"tokenAmount,omitempty" form:"token_amount"`
	CreatedAtTs      int64     `json:"createdAtTs,omitempty" form:"created_at_ts"`
	ConfirmRealOrder bool      `json:"confirmRealOrder" form:"confirm_real_order"`
}

// OrderResult 下单结果
type OrderResult struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Code       Code        `json:"code,omitempty"`
	StatusCode int         `json:"statusCode,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	OrderID    string      `json:"orderId,omitempty"`
}
