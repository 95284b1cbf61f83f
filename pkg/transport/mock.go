package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
)

// MockResponder 根据请求返回响应
type MockResponder func(ctx context.Context, method, path string, payload interface{}, opt *Options) (*Response, error)

// MockRequest 记录的请求
type MockRequest struct {
	Method  string
	Path    string
	Payload interface{}
	Headers map[string]string
}

// Mock 测试用请求层
type Mock struct {
	mu sync.RWMutex

	Responder MockResponder

	// Call tracking（按路径计数）
	Calls    map[string]int
	Requests []MockRequest

	// Error injection（按路径，只生效一次）
	ErrorOnNext map[string]error

	// NoProxySwitch 为 true 时 SetProxyEnabled 返回 ErrUnsupported
	NoProxySwitch bool

	cookies      map[string]string
	proxyEnabled bool
	closed       bool
}

// NewMock 创建 Mock
func NewMock(responder MockResponder) *Mock {
	return &Mock{
		Responder:   responder,
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		cookies:     make(map[string]string),
	}
}

// JSONResponse 构建 JSON 响应
func JSONResponse(status int, v interface{}) *Response {
	body, _ := json.Marshal(v)
	return NewResponse(status, http.Header{"Content-Type": {"application/json"}}, body)
}

func pathOf(target string) string {
	if u, err := url.Parse(target); err == nil {
		return u.Path
	}
	return target
}

func (m *Mock) trackCall(method, path string, payload interface{}, opt *Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.Calls[path]++
	req := MockRequest{Method: method, Path: path, Payload: payload}
	if opt != nil {
		req.Headers = opt.Headers
	}
	m.Requests = append(m.Requests, req)
	if err, ok := m.ErrorOnNext[path]; ok {
		delete(m.ErrorOnNext, path)
		return err
	}
	return nil
}

func (m *Mock) do(ctx context.Context, method, target string, payload interface{}, opt *Options) (*Response, error) {
	path := pathOf(target)
	if err := m.trackCall(method, path, payload, opt); err != nil {
		return nil, err
	}
	if m.Responder == nil {
		return JSONResponse(http.StatusOK, map[string]interface{}{}), nil
	}
	return m.Responder(ctx, method, path, payload, opt)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Get(ctx context.Context, url string, opt *Options) (*Response, error) {
	return m.do(ctx, http.MethodGet, url, nil, opt)
}

func (m *Mock) Post(ctx context.Context, url string, payload interface{}, opt *Options) (*Response, error) {
	return m.do(ctx, http.MethodPost, url, payload, opt)
}

// CallCount 某路径的调用次数
func (m *Mock) CallCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[path]
}

// RequestLog 已记录请求的副本
func (m *Mock) RequestLog() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// TotalCalls 总调用次数
func (m *Mock) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		n += c
	}
	return n
}

func (m *Mock) SetCookies(cookies map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range cookies {
		m.cookies[k] = v
	}
	return nil
}

func (m *Mock) Cookies() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.cookies))
	for k, v := range m.cookies {
		out[k] = v
	}
	return out, nil
}

func (m *Mock) ClearCookies() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = make(map[string]string)
	return nil
}

func (m *Mock) ProxyInfo() ProxyInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ProxyInfo{Strategy: "mock", UseProxy: m.proxyEnabled}
}

func (m *Mock) SetProxyEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NoProxySwitch {
		return ErrUnsupported
	}
	m.proxyEnabled = enabled
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed 是否已关闭
func (m *Mock) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
