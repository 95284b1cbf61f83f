package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/internal/metrics"
	"github.com/betbot/msubot/msu/client"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/race"
	"github.com/betbot/msubot/pkg/transport"
)

// Outcome 下单结果
// Response 为交易所原始响应，业务成功与否由调用方判断
type Outcome struct {
	Type     types.OrderType
	Response *transport.Response
	Order    *types.Order

	// 仅抢购
	RaceID    string
	Winner    int
	Attempts  int
	Cancelled int
}

// PlaceMarketOrder 抢购：等待冷却期结束后并发提交多个买单，第一个结束的尝试决定结果
func (e *Engine) PlaceMarketOrder(ctx context.Context, params types.OrderParams, confirmed bool) (*Outcome, error) {
	if err := e.preflight(confirmed); err != nil {
		return nil, err
	}
	// 先构建一次用于校验参数，失败时不发任何请求
	if _, err := e.sign(e.builder.MarketOrder, params); err != nil {
		return nil, err
	}

	if err := e.guard.acquire(params.NFTTokenID); err != nil {
		return nil, types.WrapError(err, types.CodeOrderCreationFailed, "商品 %s 的抢购仍在进行", params.NFTTokenID)
	}
	defer e.guard.release(params.NFTTokenID)

	raceID := uuid.NewString()
	log := e.log.WithFields(logrus.Fields{"race": raceID, "tokenId": params.NFTTokenID})

	if err := e.waitCooldown(ctx, params.CreatedAtTs, log); err != nil {
		return nil, err
	}

	metrics.RacesStarted.Add(1)
	log.Infof("🚀 开始抢购: %d 个尝试, 间隔 %s", e.race.Concurrency, e.race.Stagger)
	start := e.now()

	res, err := race.First(ctx, e.race.Concurrency, e.race.Stagger, e.attempt(params, log))
	out := &Outcome{
		Type:      types.OrderTypeMarket,
		RaceID:    raceID,
		Winner:    res.Winner,
		Attempts:  len(res.Attempts),
		Cancelled: res.Count(race.Cancelled),
	}
	if err != nil {
		metrics.RacesLost.Add(1)
		log.Warnf("抢购被取消: %v", err)
		return out, types.WrapError(err, types.CodeOrderCreationFailed, "抢购被取消")
	}
	if res.Err != nil {
		metrics.RacesLost.Add(1)
		log.Errorf("❌ 抢购失败: 尝试 #%d 先结束 (%v), 用时 %s", res.Winner, res.Err, e.now().Sub(start))
		return out, res.Err
	}

	metrics.RacesWon.Add(1)
	out.Response = res.Value.resp
	out.Order = res.Value.order
	log.Infof("✅ 尝试 #%d 先结束: HTTP %d, 取消 %d 个, 用时 %s", res.Winner, out.Response.StatusCode, out.Cancelled, e.now().Sub(start))
	return out, nil
}

// waitCooldown 等待到上架时间 + 冷却期，ctx 结束则放弃
func (e *Engine) waitCooldown(ctx context.Context, createdAtTs int64, log *logrus.Entry) error {
	if createdAtTs <= 0 {
		return nil
	}
	deadline := time.Unix(createdAtTs, 0).Add(e.race.Cooldown)
	wait := deadline.Sub(e.now())
	if wait <= 0 {
		return nil
	}
	log.Infof("⏳ 冷却期未结束，等待 %s", wait.Round(time.Millisecond))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return types.WrapError(ctx.Err(), types.CodeOrderCreationFailed, "等待冷却期时被取消")
	}
}

type submitted struct {
	resp  *transport.Response
	order *types.Order
}

// attempt 单次尝试：构建新订单（新 salt）、签名、提交
// 交易所返回"未开售"时按失败处理，并在 backoff 后结束
func (e *Engine) attempt(params types.OrderParams, log *logrus.Entry) race.Func[submitted] {
	return func(ctx context.Context, i int) (submitted, error) {
		metrics.RaceAttempts.Add(1)

		signed, err := e.sign(e.builder.MarketOrder, params)
		if err != nil {
			return submitted{}, err
		}
		metrics.OrdersSubmitted.Add(1)
		resp, err := e.client.Submit(ctx, client.ActionBuy, signed, e.session.AuthHeaders())
		if err == nil && resp.Message() == types.BlockedMessage {
			metrics.AttemptBlocked.Add(1)
			err = types.NewError(types.CodeOrderCreationFailed, "%s", types.BlockedMessage)
		}
		if err != nil {
			metrics.OrdersFailed.Add(1)
			if ctx.Err() != nil {
				log.Debugf("尝试 #%d 已取消: %v", i, err)
				return submitted{}, err
			}
			log.Warnf("尝试 #%d 失败: %v", i, err)
			e.backoff(ctx)
			return submitted{}, errors.WithMessagef(err, "尝试 #%d", i)
		}
		return submitted{resp: resp, order: signed.Order}, nil
	}
}

func (e *Engine) backoff(ctx context.Context) {
	if e.race.FailureBackoff <= 0 {
		return
	}
	timer := time.NewTimer(e.race.FailureBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
