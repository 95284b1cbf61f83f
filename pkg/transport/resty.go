package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/pkg/proxypool"
)

type proxyKey struct{}

// proxyFromContext 每次请求的代理由 context 决定，不走环境变量
func proxyFromContext(ctx context.Context) *url.URL {
	if u, ok := ctx.Value(proxyKey{}).(*url.URL); ok {
		return u
	}
	return nil
}

// Resty 基于 resty 的请求层，TLS 使用 Chrome 120 指纹，不做内部重试
type Resty struct {
	client   *resty.Client
	pool     *proxypool.Pool
	timeout  time.Duration
	useProxy atomic.Bool
	closed   atomic.Bool

	mu      sync.RWMutex
	cookies map[string]string

	log *logrus.Entry
}

// NewResty 创建 resty 请求层
func NewResty(cfg Config) *Resty {
	client := resty.NewWithClient(&http.Client{Transport: newChromeRoundTripper(cfg.RootCAs)}).
		SetCookieJar(nil).
		SetRetryCount(0)

	t := &Resty{
		client:  client,
		pool:    cfg.Pool,
		timeout: cfg.Timeout,
		cookies: make(map[string]string),
		log:     logrus.WithField("component", "transport"),
	}
	t.useProxy.Store(cfg.UseProxy)
	return t
}

func (t *Resty) Name() string { return StrategyResty }

func (t *Resty) Get(ctx context.Context, url string, opt *Options) (*Response, error) {
	return t.do(ctx, http.MethodGet, url, nil, opt)
}

func (t *Resty) Post(ctx context.Context, url string, payload interface{}, opt *Options) (*Response, error) {
	return t.do(ctx, http.MethodPost, url, payload, opt)
}

// pickProxy 代理开启且池非空时随机取一个
func (t *Resty) pickProxy() *url.URL {
	if !t.useProxy.Load() || t.pool == nil {
		return nil
	}
	raw, ok := t.pool.Random()
	if !ok {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.log.Warnf("代理格式错误，本次直连: %s", raw)
		return nil
	}
	return u
}

func (t *Resty) do(ctx context.Context, method, target string, payload interface{}, opt *Options) (*Response, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := t.timeout
	if opt != nil && opt.Timeout > 0 {
		timeout = opt.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if proxy := t.pickProxy(); proxy != nil {
		ctx = context.WithValue(ctx, proxyKey{}, proxy)
	}

	r := t.client.R().SetContext(ctx)
	for k, v := range DefaultHeaders() {
		r.SetHeader(k, v)
	}
	if opt != nil {
		for k, v := range opt.Headers {
			r.SetHeader(k, v)
		}
	}
	for name, value := range t.snapshotCookies() {
		r.SetCookie(&http.Cookie{Name: name, Value: value})
	}
	if payload != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(payload)
	}

	resp, err := r.Execute(method, target)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s 请求失败", method, target)
	}

	t.mergeCookies(resp.Cookies())
	return NewResponse(resp.StatusCode(), resp.Header(), resp.Body()), nil
}

func (t *Resty) snapshotCookies() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.cookies))
	for k, v := range t.cookies {
		out[k] = v
	}
	return out
}

func (t *Resty) mergeCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range cookies {
		if c.MaxAge < 0 {
			delete(t.cookies, c.Name)
			continue
		}
		t.cookies[c.Name] = c.Value
	}
}

func (t *Resty) SetCookies(cookies map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range cookies {
		t.cookies[k] = v
	}
	return nil
}

func (t *Resty) Cookies() (map[string]string, error) {
	return t.snapshotCookies(), nil
}

func (t *Resty) ClearCookies() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cookies = make(map[string]string)
	return nil
}

func (t *Resty) ProxyInfo() ProxyInfo {
	info := ProxyInfo{Strategy: StrategyResty, UseProxy: t.useProxy.Load()}
	if t.pool != nil {
		info.ProxyFile = t.pool.Path()
		info.ProxyCount = t.pool.Count()
		info.ProxyAvailable = info.ProxyCount > 0
	}
	return info
}

func (t *Resty) SetProxyEnabled(enabled bool) error {
	t.useProxy.Store(enabled)
	t.log.Infof("代理已%s", map[bool]string{true: "启用", false: "禁用"}[enabled])
	return nil
}

// Close 关闭空闲连接，之后的请求返回 ErrClosed
func (t *Resty) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.GetClient().CloseIdleConnections()
	return nil
}
