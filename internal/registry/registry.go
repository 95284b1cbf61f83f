// Package registry 按凭证缓存下单引擎，是外部调用的入口。
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/betbot/msubot/internal/engine"
	"github.com/betbot/msubot/internal/journal"
	"github.com/betbot/msubot/internal/metrics"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/transport"
)

// loginTimeout 创建引擎时的登录超时
const loginTimeout = 30 * time.Second

// Recorder 下单记录
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Options 注册表配置
type Options struct {
	BaseURL   string
	Transport transport.Config
	Race      engine.RaceOptions
	Store     engine.SessionStore
	Journal   Recorder

	// NewTransport 为空时使用 transport.New(Transport)
	NewTransport func() (transport.Transport, error)
}

// Registry 每个凭证一个引擎，进程内常驻，Cleanup 时释放
type Registry struct {
	opts Options

	mu      sync.RWMutex
	engines map[string]*engine.Engine
	group   singleflight.Group

	log *logrus.Entry
}

// New 创建注册表
func New(opts Options) *Registry {
	if opts.NewTransport == nil {
		cfg := opts.Transport
		opts.NewTransport = func() (transport.Transport, error) { return transport.New(cfg) }
	}
	return &Registry{
		opts:    opts,
		engines: make(map[string]*engine.Engine),
		log:     logrus.WithField("component", "registry"),
	}
}

// Identity 凭证标识：SHA-256 前 16 个十六进制字符，原始私钥不作为 key
func Identity(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])[:16]
}

// GetOrCreate 获取或创建引擎
// 并发创建同一凭证时只创建一次；创建时尝试登录，登录失败不影响创建
func (r *Registry) GetOrCreate(ctx context.Context, rawKey string) (*engine.Engine, error) {
	if strings.TrimSpace(rawKey) == "" {
		return nil, types.NewError(types.CodeMissingPrivateKey, "未配置私钥")
	}
	id := Identity(rawKey)
	if e, ok := r.Get(id); ok {
		return e, nil
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		if e, ok := r.Get(id); ok {
			return e, nil
		}
		return r.create(ctx, id, rawKey)
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.Engine), nil
}

func (r *Registry) create(ctx context.Context, id, rawKey string) (*engine.Engine, error) {
	tr, err := r.opts.NewTransport()
	if err != nil {
		return nil, err
	}
	e, err := engine.New(engine.Config{
		BaseURL:    r.opts.BaseURL,
		PrivateKey: rawKey,
		Identity:   id,
		Transport:  tr,
		Store:      r.opts.Store,
		Race:       r.opts.Race,
	})
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	r.log.Infof("创建引擎: identity=%s address=%s transport=%s", id, e.Address(), tr.Name())

	if !e.IsAuthenticated() {
		// 不随调用方取消，避免一个请求的取消影响共享的创建过程
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
		if err := e.Login(loginCtx); err != nil {
			r.log.Warnf("创建引擎时登录失败，保持未登录状态: %v", err)
		}
		cancel()
	}

	r.mu.Lock()
	r.engines[id] = e
	metrics.RegistryEngines.Set(int64(len(r.engines)))
	r.mu.Unlock()
	return e, nil
}

// Get 按标识查找引擎
func (r *Registry) Get(identity string) (*engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[identity]
	return e, ok
}

// Engines 所有引擎（按标识排序）
func (r *Registry) Engines() []*engine.Engine {
	r.mu.RLock()
	out := make([]*engine.Engine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	return out
}

// Len 引擎数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Cleanup 关闭所有引擎并清空
func (r *Registry) Cleanup() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*engine.Engine)
	metrics.RegistryEngines.Set(0)
	r.mu.Unlock()

	for id, e := range engines {
		if err := e.Close(); err != nil {
			r.log.Errorf("关闭引擎失败 %s: %v", id, err)
		}
	}
	r.log.Infof("已清理 %d 个引擎", len(engines))
}

// Login 登录（不存在则先创建）
func (r *Registry) Login(ctx context.Context, rawKey string) error {
	e, err := r.GetOrCreate(ctx, rawKey)
	if err != nil {
		return err
	}
	return e.Login(ctx)
}

// Markets 按过滤条件查询在售商品
func (r *Registry) Markets(ctx context.Context, rawKey string, filter map[string]interface{}) ([]types.Listing, error) {
	e, err := r.GetOrCreate(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	return e.Markets(ctx, filter)
}
