package engine

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// ErrPurchaseInFlight 同一商品的抢购仍在进行
var ErrPurchaseInFlight = fmt.Errorf("purchase in flight")

// purchaseGuard 防止同一引擎对同一 nftTokenId 同时发起多轮抢购
// （定时任务自动下单与手动下单可能撞到同一商品）。
// ttl 是兜底：正常路径在抢购结束时 release。
type purchaseGuard struct {
	ttl    time.Duration
	now    func() time.Time
	shards []guardShard
}

type guardShard struct {
	mu sync.Mutex
	m  map[string]time.Time // tokenID -> expiresAt
}

func newPurchaseGuard(ttl time.Duration, shardCount int, now func() time.Time) *purchaseGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if shardCount <= 0 {
		shardCount = 16
	}
	if now == nil {
		now = time.Now
	}
	shards := make([]guardShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &purchaseGuard{ttl: ttl, now: now, shards: shards}
}

// acquire 成功返回 nil，已有进行中的抢购返回 ErrPurchaseInFlight
func (g *purchaseGuard) acquire(tokenID string) error {
	if g == nil || tokenID == "" {
		return nil
	}
	now := g.now()
	sh := g.shard(tokenID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}
	if exp, ok := sh.m[tokenID]; ok && exp.After(now) {
		return ErrPurchaseInFlight
	}
	sh.m[tokenID] = now.Add(g.ttl)
	return nil
}

func (g *purchaseGuard) release(tokenID string) {
	if g == nil || tokenID == "" {
		return
	}
	sh := g.shard(tokenID)
	sh.mu.Lock()
	delete(sh.m, tokenID)
	sh.mu.Unlock()
}

func (g *purchaseGuard) shard(tokenID string) *guardShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tokenID))
	return &g.shards[int(h.Sum32()%uint32(len(g.shards)))]
}
