package registry

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/internal/engine"
	"github.com/betbot/msubot/internal/journal"
	"github.com/betbot/msubot/msu/types"
)

// PlaceOrder 下单入口：解析引擎、补全参数、按类型下单、归类结果并记录
// 错误不会以 error 返回，结果中始终带有错误码
func (r *Registry) PlaceOrder(ctx context.Context, rawKey string, req types.OrderRequest) types.OrderResult {
	if req.OrderType == "" {
		req.OrderType = types.OrderTypeMarket
	}
	log := r.log.WithFields(logrus.Fields{"tokenId": req.NFTTokenID, "orderType": req.OrderType})

	if strings.TrimSpace(rawKey) == "" {
		return failure(types.NewError(types.CodeMissingPrivateKey, "未配置私钥"))
	}
	// 未确认的请求不创建引擎、不登录、不查询商品
	if !req.ConfirmRealOrder {
		res := failure(types.NewError(types.CodeSecurityCheckFailed, "真实下单需要确认"))
		log.Warn("拒绝未确认的下单请求")
		r.record(Identity(rawKey), req, nil, res)
		return res
	}

	e, err := r.GetOrCreate(ctx, rawKey)
	if err != nil {
		return failure(err)
	}
	if !e.IsAuthenticated() {
		if err := e.Login(ctx); err != nil {
			log.Warnf("下单前登录失败: %v", err)
		}
	}

	out, err := r.dispatch(ctx, e, req)
	res := classify(out, err)
	if !res.Success {
		log.Errorf("下单失败: code=%s message=%s", res.Code, res.Message)
	} else {
		log.Info("✅ 订单创建成功")
	}
	r.record(e.Identity(), req, out, res)
	return res
}

func (r *Registry) dispatch(ctx context.Context, e *engine.Engine, req types.OrderRequest) (*engine.Outcome, error) {
	if req.NFTTokenID == "" {
		return nil, types.NewError(types.CodeInvalidParameters, "nftTokenId 不能为空")
	}
	params := types.OrderParams{NFTTokenID: req.NFTTokenID}

	switch req.OrderType {
	case types.OrderTypeMarket:
		price, createdAt := req.PriceWei, req.CreatedAtTs
		if price == "" || createdAt == 0 {
			details, err := e.ItemDetails(ctx, req.NFTTokenID)
			if err != nil {
				return nil, err
			}
			price, createdAt = details.SalesInfo.PriceWei, details.CreatedAtTs
		}
		if price == "" {
			return nil, types.NewError(types.CodeItemNotForSale, "商品当前不在售，无法下市价单")
		}
		params.TokenAmount = price
		params.CreatedAtTs = createdAt
		return e.PlaceMarketOrder(ctx, params, req.ConfirmRealOrder)

	case types.OrderTypeLimit:
		if req.Amount == "" && req.TokenAmount == "" {
			return nil, types.NewError(types.CodeMissingAmount, "限价单必须提供 amount 参数")
		}
		params.Amount = req.Amount
		params.TokenAmount = req.TokenAmount
		return e.PlaceLimitOrder(ctx, params, req.ConfirmRealOrder)

	case types.OrderTypeSell:
		params.TokenAmount = req.TokenAmount
		if params.TokenAmount == "" {
			params.TokenAmount = req.PriceWei
		}
		if params.TokenAmount == "" {
			return nil, types.NewError(types.CodeMissingTokenAmount, "卖单必须提供 token_amount 参数")
		}
		return e.PlaceSellOrder(ctx, params, req.ConfirmRealOrder)
	}
	return nil, types.NewError(types.CodeUnsupportedOrderType, "不支持的订单类型: %s", req.OrderType)
}

func failure(err error) types.OrderResult {
	return types.OrderResult{Success: false, Message: err.Error(), Code: types.CodeOf(err)}
}

// classify 将下单结果归类为稳定的错误码
func classify(out *engine.Outcome, err error) types.OrderResult {
	if err != nil {
		return failure(err)
	}
	resp := out.Response
	if resp.Success {
		return types.OrderResult{
			Success:    true,
			Message:    "订单创建成功",
			StatusCode: resp.StatusCode,
			Data:       resp.Data,
			OrderID:    orderID(resp.Data),
		}
	}

	code := types.CodeOrderCreationFailed
	if statusErr := types.StatusCode(resp.StatusCode, "下单"); statusErr != nil {
		code = types.CodeOf(statusErr)
	}
	msg := resp.Message()
	if msg == "" {
		msg = resp.StatusText
	}
	return types.OrderResult{
		Success:    false,
		Message:    "订单创建失败: " + msg,
		Code:       code,
		StatusCode: resp.StatusCode,
		Data:       resp.Data,
	}
}

func orderID(data interface{}) string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	for _, k := range []string{"orderId", "id", "transactionHash"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (r *Registry) record(identity string, req types.OrderRequest, out *engine.Outcome, res types.OrderResult) {
	if r.opts.Journal == nil {
		return
	}
	entry := journal.Entry{
		Identity:   identity,
		TokenID:    req.NFTTokenID,
		OrderType:  string(req.OrderType),
		Success:    res.Success,
		Code:       string(res.Code),
		Message:    res.Message,
		StatusCode: res.StatusCode,
		Winner:     -1,
	}
	if out != nil {
		entry.RaceID = out.RaceID
		entry.Winner = out.Winner
		entry.Attempts = out.Attempts
		entry.Cancelled = out.Cancelled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.opts.Journal.Record(ctx, entry); err != nil {
		r.log.Warnf("写入下单记录失败: %v", err)
	}
}
