package transport

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/msubot/pkg/proxypool"
)

// StrategyResty 基于 resty 的实现
const StrategyResty = "resty"

// ErrUnsupported 当前实现不支持该操作
var ErrUnsupported = errors.New("transport: 不支持的操作")

// ErrClosed 已销毁
var ErrClosed = errors.New("transport: 已关闭")

// Options 单次请求选项
type Options struct {
	Headers map[string]string
	Timeout time.Duration // 0 使用默认超时
}

// Response 统一的响应格式
type Response struct {
	StatusCode int
	StatusText string
	Headers    http.Header
	Body       []byte
	Data       interface{} // JSON 解析结果，解析失败时为原始文本
	Success    bool        // 200 <= StatusCode < 300
}

// NewResponse 根据状态码和响应体构建响应
func NewResponse(status int, header http.Header, body []byte) *Response {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		data = string(body)
	}
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		StatusCode: status,
		StatusText: http.StatusText(status),
		Headers:    header,
		Body:       body,
		Data:       data,
		Success:    status >= 200 && status < 300,
	}
}

// Decode 将响应体解析到 v
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrapf(err, "解析响应失败 (status=%d)", r.StatusCode)
	}
	return nil
}

// Message 响应体中的 message 字段
func (r *Response) Message() string {
	if m, ok := r.Data.(map[string]interface{}); ok {
		if s, ok := m["message"].(string); ok {
			return s
		}
	}
	return ""
}

// ProxyInfo 代理状态
type ProxyInfo struct {
	Strategy       string `json:"strategy"`
	UseProxy       bool   `json:"use_proxy"`
	ProxyFile      string `json:"proxy_file,omitempty"`
	ProxyCount     int    `json:"proxy_count"`
	ProxyAvailable bool   `json:"proxy_available"`
}

// Transport HTTP 请求层
// 实现不支持的操作返回 ErrUnsupported
type Transport interface {
	Name() string
	Get(ctx context.Context, url string, opt *Options) (*Response, error)
	Post(ctx context.Context, url string, payload interface{}, opt *Options) (*Response, error)
	SetCookies(cookies map[string]string) error
	Cookies() (map[string]string, error)
	ClearCookies() error
	ProxyInfo() ProxyInfo
	SetProxyEnabled(enabled bool) error
	Close() error
}

// Config 请求层配置
type Config struct {
	Strategy string
	Timeout  time.Duration
	UseProxy bool
	Pool     *proxypool.Pool
	RootCAs  *x509.CertPool // 为空使用系统证书
}

// New 按策略名创建请求层
func New(cfg Config) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyResty:
		return NewResty(cfg), nil
	default:
		return nil, errors.Errorf("不支持的请求策略: %s", cfg.Strategy)
	}
}
