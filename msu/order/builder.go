package order

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/msubot/msu/types"
)

const secondsPerDay = 86400

var maxAmount = decimal.NewFromInt(types.MaxTokenAmount)

// Builder 构建未签名订单
type Builder struct {
	maker    string
	now      func() time.Time
	lastSalt atomic.Int64
}

// Option 构建器选项
type Option func(*Builder)

// WithClock 指定时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder 创建订单构建器，maker 为钱包地址
func NewBuilder(maker string, opts ...Option) *Builder {
	b := &Builder{maker: maker, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Maker 钱包地址
func (b *Builder) Maker() string { return b.maker }

// ScaleAmount 人类单位数量转 wei（乘以 10^18，向零截断）
func ScaleAmount(amount string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", types.WrapError(err, types.CodeInvalidParameters, "无效的代币数量: %s", amount)
	}
	if d.IsNegative() {
		return "", types.NewError(types.CodeInvalidParameters, "代币数量不能为负数: %s", amount)
	}
	if d.GreaterThan(maxAmount) {
		return "", types.NewError(types.CodeInvalidParameters,
			"代币数量过大: %s，可能单位错误。最大支持数量: %d", amount, types.MaxTokenAmount)
	}
	return d.Shift(18).Truncate(0).String(), nil
}

// nextSalt 毫秒时间戳，同一毫秒内递增保证进程内不重复
func (b *Builder) nextSalt(now time.Time) int64 {
	ms := now.UnixMilli()
	for {
		last := b.lastSalt.Load()
		next := ms
		if next <= last {
			next = last + 1
		}
		if b.lastSalt.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Build 构建订单，TokenAmount 优先于 Amount，两者都没有返回 INVALID_PARAMETERS
func (b *Builder) Build(params types.OrderParams, isSeller bool, expireDays int) (*types.Order, error) {
	tokenID := strings.TrimSpace(params.NFTTokenID)
	if tokenID == "" {
		return nil, types.NewError(types.CodeInvalidParameters, "缺少 nft_token_id")
	}

	var tokenAmount string
	switch {
	case strings.TrimSpace(params.TokenAmount) != "":
		tokenAmount = strings.TrimSpace(params.TokenAmount)
	case strings.TrimSpace(params.Amount) != "":
		scaled, err := ScaleAmount(params.Amount)
		if err != nil {
			return nil, err
		}
		tokenAmount = scaled
	default:
		return nil, types.NewError(types.CodeInvalidParameters, "必须提供 amount 或 token_amount 参数")
	}

	now := b.now()
	sec := now.Unix()
	return &types.Order{
		IsSeller:       isSeller,
		Maker:          b.maker,
		ListingTime:    strconv.FormatInt(sec, 10),
		ExpirationTime: strconv.FormatInt(sec+int64(expireDays)*secondsPerDay, 10),
		TokenAddress:   types.TokenAddress,
		TokenAmount:    tokenAmount,
		NFTAddress:     types.NFTAddress,
		NFTTokenID:     tokenID,
		Salt:           strconv.FormatInt(b.nextSalt(now), 10),
	}, nil
}

// MarketOrder 抢购买单，3 天过期
func (b *Builder) MarketOrder(params types.OrderParams) (*types.Order, error) {
	return b.Build(params, false, types.MarketExpireDays)
}

// LimitOrder 出价买单，3 天过期
func (b *Builder) LimitOrder(params types.OrderParams) (*types.Order, error) {
	return b.Build(params, false, types.MarketExpireDays)
}

// SellOrder 上架卖单，14 天过期
func (b *Builder) SellOrder(params types.OrderParams) (*types.Order, error) {
	return b.Build(params, true, types.SellExpireDays)
}
