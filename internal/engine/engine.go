// Package engine 单钱包的下单引擎：登录态、订单构建签名、抢购竞速。
package engine

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/msu/client"
	"github.com/betbot/msubot/msu/order"
	"github.com/betbot/msubot/msu/signing"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/transport"
)

// RaceOptions 抢购参数
type RaceOptions struct {
	Concurrency    int           // 尝试数量
	Stagger        time.Duration // 相邻尝试的启动间隔
	Cooldown       time.Duration // 上架后的冷却期
	FailureBackoff time.Duration // 尝试失败后的等待
}

// DefaultRaceOptions 默认抢购参数
func DefaultRaceOptions() RaceOptions {
	return RaceOptions{
		Concurrency:    300,
		Stagger:        10 * time.Millisecond,
		Cooldown:       30 * time.Second,
		FailureBackoff: 5 * time.Second,
	}
}

// Config 引擎配置
type Config struct {
	BaseURL    string
	PrivateKey string
	// Identity 引擎标识（用于日志和登录态持久化），为空时使用地址
	Identity  string
	Transport transport.Transport
	Store     SessionStore
	Race      RaceOptions
	Now       func() time.Time
}

// Engine 单钱包下单引擎
type Engine struct {
	identity string
	address  string
	key      *ecdsa.PrivateKey

	tr      transport.Transport
	client  *client.Client
	builder *order.Builder
	session *Session

	race  RaceOptions
	guard *purchaseGuard
	now   func() time.Time

	log *logrus.Entry
}

// New 创建引擎，私钥缺失或无效时失败
func New(cfg Config) (*Engine, error) {
	key, err := signing.PrivateKeyFromHex(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	if cfg.Transport == nil {
		return nil, errors.New("engine: transport 不能为空")
	}
	if cfg.Race.Concurrency <= 0 {
		cfg.Race = DefaultRaceOptions()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	address := signing.AddressFromKey(key).Hex()
	identity := cfg.Identity
	if identity == "" {
		identity = address
	}

	c := client.New(cfg.Transport, cfg.BaseURL, address)
	e := &Engine{
		identity: identity,
		address:  address,
		key:      key,
		tr:       cfg.Transport,
		client:   c,
		builder:  order.NewBuilder(address, order.WithClock(now)),
		session:  newSession(identity, key, c, cfg.Transport, cfg.Store),
		race:     cfg.Race,
		guard:    newPurchaseGuard(cfg.Race.Cooldown+2*time.Minute, 0, now),
		now:      now,
		log:      logrus.WithFields(logrus.Fields{"component": "engine", "identity": identity}),
	}
	e.session.Restore()
	return e, nil
}

// Identity 引擎标识
func (e *Engine) Identity() string { return e.identity }

// Address 钱包地址
func (e *Engine) Address() string { return e.address }

// Session 登录态
func (e *Engine) Session() *Session { return e.session }

// Login 登录
func (e *Engine) Login(ctx context.Context) error { return e.session.Login(ctx) }

// IsAuthenticated 是否已登录
func (e *Engine) IsAuthenticated() bool { return e.session.IsAuthenticated() }

// ItemDetails 查询商品详情
func (e *Engine) ItemDetails(ctx context.Context, tokenID string) (*types.ItemDetails, error) {
	return e.client.ItemDetails(ctx, tokenID)
}

// Markets 按过滤条件查询在售商品
func (e *Engine) Markets(ctx context.Context, filter map[string]interface{}) ([]types.Listing, error) {
	return e.client.Explore(ctx, filter)
}

// ProxyInfo 请求层代理状态
func (e *Engine) ProxyInfo() transport.ProxyInfo { return e.tr.ProxyInfo() }

// SetProxyEnabled 开关代理，请求层不支持时只记录警告
func (e *Engine) SetProxyEnabled(enabled bool) error {
	if err := e.tr.SetProxyEnabled(enabled); err != nil {
		if errors.Is(err, transport.ErrUnsupported) {
			e.log.Warnf("⚠️ 请求层 %s 不支持切换代理", e.tr.Name())
		}
		return err
	}
	e.log.Infof("代理已%s", map[bool]string{true: "启用", false: "关闭"}[enabled])
	return nil
}

// Close 释放请求层
func (e *Engine) Close() error {
	return e.tr.Close()
}

// preflight 下单前置检查，不产生任何网络请求
func (e *Engine) preflight(confirmed bool) error {
	if !confirmed {
		return types.NewError(types.CodeSecurityCheckFailed, "真实下单需要确认")
	}
	if !e.session.IsAuthenticated() {
		return types.NewError(types.CodeAuthenticationRequired, "未登录")
	}
	return nil
}

// sign 构建并签名订单
func (e *Engine) sign(build func(types.OrderParams) (*types.Order, error), params types.OrderParams) (*types.SignedOrder, error) {
	o, err := build(params)
	if err != nil {
		return nil, err
	}
	sig, err := signing.SignOrder(o, e.key)
	if err != nil {
		return nil, err
	}
	return &types.SignedOrder{Order: o, OrderSign: sig}, nil
}

// PlaceLimitOrder 限价买单（offer），有效期 3 天
func (e *Engine) PlaceLimitOrder(ctx context.Context, params types.OrderParams, confirmed bool) (*Outcome, error) {
	return e.placeSingle(ctx, types.OrderTypeLimit, client.ActionOffer, e.builder.LimitOrder, params, confirmed)
}

// PlaceSellOrder 卖单（register），有效期 14 天
func (e *Engine) PlaceSellOrder(ctx context.Context, params types.OrderParams, confirmed bool) (*Outcome, error) {
	return e.placeSingle(ctx, types.OrderTypeSell, client.ActionRegister, e.builder.SellOrder, params, confirmed)
}

func (e *Engine) placeSingle(ctx context.Context, kind types.OrderType, action client.Action,
	build func(types.OrderParams) (*types.Order, error), params types.OrderParams, confirmed bool) (*Outcome, error) {
	if err := e.preflight(confirmed); err != nil {
		return nil, err
	}
	signed, err := e.sign(build, params)
	if err != nil {
		return nil, err
	}

	e.log.Infof("📤 提交%s订单: tokenId=%s amount=%s", kind, params.NFTTokenID, signed.Order.TokenAmount)
	resp, err := e.client.Submit(ctx, action, signed, e.session.AuthHeaders())
	if err != nil {
		e.log.Errorf("❌ %s订单提交失败: %v", kind, err)
		return nil, err
	}
	return &Outcome{Type: kind, Response: resp, Order: signed.Order, Winner: -1}, nil
}
