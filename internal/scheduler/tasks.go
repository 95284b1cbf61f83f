package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/betbot/msubot/internal/metrics"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/cache"
	"github.com/betbot/msubot/pkg/config"
)

// Venue 定时任务依赖的下单入口（由 registry.Registry 实现）
type Venue interface {
	Login(ctx context.Context, rawKey string) error
	Markets(ctx context.Context, rawKey string, filter map[string]interface{}) ([]types.Listing, error)
	PlaceOrder(ctx context.Context, rawKey string, req types.OrderRequest) types.OrderResult
}

// TaskOptions 定时任务参数
type TaskOptions struct {
	PrivateKey        string
	Filters           []config.FilterConfig
	MaxResults        int
	SeenTTL           time.Duration
	ExploreRate       float64 // 每秒 explore 请求数，0 为不限
	LoginInterval     time.Duration
	DiscoveryInterval time.Duration
}

// Tasks 登录和新上架发现任务
type Tasks struct {
	venue   Venue
	opts    TaskOptions
	seen    *cache.SeenListings
	limiter *rate.Limiter

	// 自动抢购使用独立的 ctx，Close 时取消
	ordersCtx    context.Context
	cancelOrders context.CancelFunc
	orders       sync.WaitGroup

	mu     sync.Mutex
	closed bool // Close 之后不再发起新的抢购

	log *logrus.Entry
}

// NewTasks 创建任务
func NewTasks(venue Venue, opts TaskOptions) *Tasks {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 50
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = time.Hour
	}
	limit := rate.Inf
	if opts.ExploreRate > 0 {
		limit = rate.Limit(opts.ExploreRate)
	}
	burst := len(opts.Filters)
	if burst < 1 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tasks{
		venue:        venue,
		opts:         opts,
		seen:         cache.NewSeenListings(opts.SeenTTL),
		limiter:      rate.NewLimiter(limit, burst),
		ordersCtx:    ctx,
		cancelOrders: cancel,
		log:          logrus.WithField("component", "tasks"),
	}
}

// Register 注册登录任务（不立即执行）和发现任务（立即执行）
func (t *Tasks) Register(s *Scheduler) error {
	if err := s.Add(Job{
		Name:     "periodic_login",
		Interval: t.opts.LoginInterval,
		Run:      t.Login,
	}); err != nil {
		return err
	}
	if len(t.opts.Filters) == 0 {
		t.log.Info("未配置筛选条件，跳过新上架发现任务")
		return nil
	}
	return s.Add(Job{
		Name:      "get_new_markets",
		Interval:  t.opts.DiscoveryInterval,
		Immediate: true,
		Run:       t.Discover,
	})
}

// Login 定时登录
func (t *Tasks) Login(ctx context.Context) error {
	t.log.Info("🔐 开始执行定时登录...")
	if err := t.venue.Login(ctx, t.opts.PrivateKey); err != nil {
		return err
	}
	t.log.Info("✅ 定时登录完成")
	return nil
}

// Discover 按所有筛选条件并发查询新上架
func (t *Tasks) Discover(ctx context.Context) error {
	metrics.DiscoveryRuns.Add(1)
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range t.opts.Filters {
		f := f
		g.Go(func() error {
			return t.fetch(gctx, f)
		})
	}
	return g.Wait()
}

func (t *Tasks) fetch(ctx context.Context, f config.FilterConfig) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	listings, err := t.venue.Markets(ctx, t.opts.PrivateKey, f.Filter)
	if err != nil {
		// 单个筛选失败不影响其它筛选
		t.log.Warnf("[%s] 查询新上架失败: %v", f.Name, err)
		return nil
	}

	if !t.sane(f, listings) {
		metrics.DiscoveryRejected.Add(1)
		t.log.Warnf("[%s] 结果异常，跳过本批 (%d 条)", f.Name, len(listings))
		return nil
	}

	fresh := 0
	for _, l := range listings {
		if !t.seen.MarkNew(l.TokenID, l.CreatedAtTs) {
			continue
		}
		fresh++
		metrics.DiscoveryListings.Add(1)
		t.log.Infof("[%s] 新上架: tokenId=%s price=%s createdAt=%d", f.Name, l.TokenID, l.PriceWei, l.CreatedAtTs)
		if f.AutoBuy {
			t.buy(l)
		}
	}
	if fresh > 0 {
		t.log.Infof("[%s] 发现 %d 个新上架", f.Name, fresh)
	}
	return nil
}

// sane 分类不符或数量过多视为接口返回异常
func (t *Tasks) sane(f config.FilterConfig, listings []types.Listing) bool {
	if len(listings) > t.opts.MaxResults {
		return false
	}
	cat := f.CategoryNo()
	if cat == 0 {
		return true
	}
	for _, l := range listings {
		if l.CategoryNo != cat {
			return false
		}
	}
	return true
}

// buy 自动抢购在后台执行，不阻塞发现任务
func (t *Tasks) buy(l types.Listing) {
	req := types.OrderRequest{
		NFTTokenID:       l.TokenID,
		OrderType:        types.OrderTypeMarket,
		PriceWei:         l.PriceWei,
		CreatedAtTs:      l.CreatedAtTs,
		ConfirmRealOrder: true,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.log.Debugf("任务已关闭，跳过自动抢购: tokenId=%s", l.TokenID)
		return
	}
	t.orders.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.orders.Done()
		res := t.venue.PlaceOrder(t.ordersCtx, t.opts.PrivateKey, req)
		if res.Success {
			t.log.Infof("✅ 自动抢购成功: tokenId=%s", l.TokenID)
		} else {
			t.log.Warnf("自动抢购失败: tokenId=%s code=%s %s", l.TokenID, res.Code, res.Message)
		}
	}()
}

// Close 取消进行中的自动抢购并等待其结束
func (t *Tasks) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancelOrders()
	t.orders.Wait()
	t.seen.Close()
}
