package client

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/transport"
)

// signInTimeout 登录接口较慢，单独放宽超时
const signInTimeout = 15 * time.Second

// Client 交易所 API 封装
type Client struct {
	tr      transport.Transport
	baseURL string
	address string
	log     *logrus.Entry
}

// New 创建交易所客户端，address 为钱包地址
func New(tr transport.Transport, baseURL, address string) *Client {
	return &Client{
		tr:      tr,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		address: address,
		log:     logrus.WithFields(logrus.Fields{"component": "msu", "address": address}),
	}
}

// Transport 底层请求层
func (c *Client) Transport() transport.Transport { return c.tr }

// Address 钱包地址
func (c *Client) Address() string { return c.address }

func (c *Client) headers(referer string, extra map[string]string) map[string]string {
	h := map[string]string{
		"accept":          transport.Accept,
		"accept-language": transport.AcceptLanguage,
		"origin":          c.baseURL,
		"referer":         c.baseURL + referer,
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// checkStatus 非 2xx 的响应转为错误，429/403 归类
func checkStatus(resp *transport.Response, action string) error {
	if resp.Success {
		return nil
	}
	if err := types.StatusCode(resp.StatusCode, action); err != nil {
		return err
	}
	return errors.Errorf("%s失败: %d", action, resp.StatusCode)
}

type itemResponse struct {
	Name      string `json:"name"`
	SalesInfo struct {
		TokenID            flexString `json:"tokenId"`
		PriceWei           flexString `json:"priceWei"`
		MinimumPriceWei    flexString `json:"minimumPriceWei"`
		LastTradedPriceWei flexString `json:"lastTradedPriceWei"`
		CreatedAt          string     `json:"createdAt"`
	} `json:"salesInfo"`
}

// ItemDetails 获取商品详情，上架时间解析为 CreatedAtTs
func (c *Client) ItemDetails(ctx context.Context, tokenID string) (*types.ItemDetails, error) {
	c.log.Infof("[%s] 获取商品详情", tokenID)

	resp, err := c.tr.Get(ctx, c.baseURL+itemPath(tokenID), &transport.Options{
		Headers: c.headers(refererMarketplace, nil),
	})
	if err != nil {
		return nil, errors.Wrap(err, "获取商品详情失败")
	}
	if err := checkStatus(resp, "获取商品详情"); err != nil {
		return nil, err
	}

	var raw itemResponse
	if err := resp.Decode(&raw); err != nil {
		return nil, err
	}
	details := &types.ItemDetails{
		Name: raw.Name,
		SalesInfo: types.SalesInfo{
			TokenID:            string(raw.SalesInfo.TokenID),
			PriceWei:           string(raw.SalesInfo.PriceWei),
			MinimumPriceWei:    string(raw.SalesInfo.MinimumPriceWei),
			LastTradedPriceWei: string(raw.SalesInfo.LastTradedPriceWei),
			CreatedAt:          raw.SalesInfo.CreatedAt,
		},
		Raw: resp.Body,
	}
	if details.SalesInfo.CreatedAt != "" {
		ts, err := details.SalesInfo.CreatedAtUnix()
		if err != nil {
			return nil, errors.Wrapf(err, "解析上架时间失败: %s", details.SalesInfo.CreatedAt)
		}
		details.CreatedAtTs = ts
	}
	c.log.Debugf("[%s] 获取商品详情成功: price=%s createdAt=%s", tokenID, details.SalesInfo.PriceWei, details.SalesInfo.CreatedAt)
	return details, nil
}

type exploreResponse struct {
	Items []struct {
		Data struct {
			ItemID     flexString `json:"itemId"`
			CategoryNo flexString `json:"categoryNo"`
		} `json:"data"`
		Name       string     `json:"name"`
		CategoryNo flexString `json:"categoryNo"`
		SalesInfo  struct {
			TokenID            flexString `json:"tokenId"`
			PriceWei           flexString `json:"priceWei"`
			MinimumPriceWei    flexString `json:"minimumPriceWei"`
			LastTradedPriceWei flexString `json:"lastTradedPriceWei"`
			CreatedAt          string     `json:"createdAt"`
		} `json:"salesInfo"`
	} `json:"items"`
}

// Explore 按筛选条件查询最新上架
func (c *Client) Explore(ctx context.Context, filter map[string]interface{}) ([]types.Listing, error) {
	if filter == nil {
		filter = map[string]interface{}{}
	}
	payload := map[string]interface{}{
		"filter":     filter,
		"sorting":    SortingRecentlyListed,
		"walletAddr": c.address,
	}
	resp, err := c.tr.Post(ctx, c.baseURL+EndpointExplore, payload, &transport.Options{
		Headers: c.headers(refererMarketplace, nil),
	})
	if err != nil {
		return nil, errors.Wrap(err, "获取市场列表失败")
	}
	if err := checkStatus(resp, "获取市场列表"); err != nil {
		return nil, err
	}

	var raw exploreResponse
	if err := resp.Decode(&raw); err != nil {
		return nil, err
	}
	listings := make([]types.Listing, 0, len(raw.Items))
	for _, item := range raw.Items {
		s := item.SalesInfo
		l := types.Listing{
			ID:                 string(item.Data.ItemID),
			Name:               item.Name,
			TokenID:            string(s.TokenID),
			PriceWei:           string(s.PriceWei),
			MinimumPriceWei:    string(s.MinimumPriceWei),
			LastTradedPriceWei: string(s.LastTradedPriceWei),
			CreatedAt:          s.CreatedAt,
			CategoryNo:         item.CategoryNo.int64(),
		}
		if l.CategoryNo == 0 {
			l.CategoryNo = item.Data.CategoryNo.int64()
		}
		ts, err := types.SalesInfo{CreatedAt: s.CreatedAt}.CreatedAtUnix()
		if err != nil {
			c.log.Warnf("跳过上架时间无法解析的商品 %s: %s", l.TokenID, s.CreatedAt)
			continue
		}
		l.CreatedAtTs = ts
		listings = append(listings, l)
	}
	return listings, nil
}

// LoginMessage 获取登录挑战
func (c *Client) LoginMessage(ctx context.Context) (string, error) {
	resp, err := c.tr.Post(ctx, c.baseURL+EndpointLoginMessage, map[string]string{"address": c.address}, &transport.Options{
		Headers: c.headers(refererSwap, nil),
	})
	if err != nil {
		return "", errors.Wrap(err, "获取message失败")
	}
	if err := checkStatus(resp, "获取message"); err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Message == "" {
		return "", errors.New("获取message失败: 响应中没有 message")
	}
	return out.Message, nil
}

// SignIn 提交签名登录，返回 wat/wrt
func (c *Client) SignIn(ctx context.Context, signature string) (*types.SignInResult, error) {
	payload := map[string]string{
		"address":    c.address,
		"signature":  signature,
		"walletType": types.WalletTypeMetamask,
	}
	resp, err := c.tr.Post(ctx, c.baseURL+EndpointSignIn, payload, &transport.Options{
		Headers: c.headers(refererSwap, map[string]string{"x-msu-address": c.address}),
		Timeout: signInTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "登录请求失败")
	}
	if err := checkStatus(resp, "登录"); err != nil {
		return nil, err
	}
	var out types.SignInResult
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Wat == "" || out.Wrt == "" {
		return nil, errors.New("登录响应中未找到 wat 或 wrt tokens")
	}
	return &out, nil
}

// Submit 提交已签名订单，返回原始响应（由调用方判断业务结果）
func (c *Client) Submit(ctx context.Context, action Action, signed *types.SignedOrder, auth map[string]string) (*transport.Response, error) {
	if signed == nil || signed.Order == nil {
		return nil, types.NewError(types.CodeInvalidOrder, "订单为空")
	}
	resp, err := c.tr.Post(ctx, c.baseURL+actionPath(signed.Order.NFTTokenID, action), signed, &transport.Options{
		Headers: c.headers(refererMarketplace, auth),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "提交订单失败 (%s)", action)
	}
	return resp, nil
}
