package types

import (
	"encoding/json"
	"time"
)

// SalesInfo 商品销售信息
type SalesInfo struct {
	TokenID            string `json:"tokenId"`
	PriceWei           string `json:"priceWei"`
	MinimumPriceWei    string `json:"minimumPriceWei"`
	LastTradedPriceWei string `json:"lastTradedPriceWei"`
	CreatedAt          string `json:"createdAt"`
}

// CreatedAtUnix 解析上架时间（UTC）为秒级时间戳
func (s SalesInfo) CreatedAtUnix() (int64, error) {
	t, err := time.Parse(CreatedAtLayout, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// ItemDetails 商品详情
type ItemDetails struct {
	Name        string          `json:"name"`
	SalesInfo   SalesInfo       `json:"salesInfo"`
	CreatedAtTs int64           `json:"createdAtTs"`
	Raw         json.RawMessage `json:"-"`
}

// Listing 新上架商品（explore 接口结果）
type Listing struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	TokenID            string `json:"tokenId"`
	PriceWei           string `json:"priceWei"`
	MinimumPriceWei    string `json:"minimumPriceWei"`
	LastTradedPriceWei string `json:"lastTradedPriceWei"`
	CreatedAt          string `json:"createdAt"`
	CreatedAtTs        int64  `json:"createdAtTs"`
	CategoryNo         int64  `json:"categoryNo"`
}

// SignInResult 钱包登录返回
type SignInResult struct {
	Wat         string      `json:"wat"`
	Wrt         string      `json:"wrt"`
	WatExpireAt interface{} `json:"watExpireAt,omitempty"` // 交易所返回格式不固定，原样保存
	WrtExpireAt interface{} `json:"wrtExpireAt,omitempty"`
}
