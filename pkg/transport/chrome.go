package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	utls "github.com/refraction-networking/utls"
)

// chromeHelloSpec Chrome 120 的 ClientHello（GREASE、扩展顺序、密码套件）
// ALPN 只保留 http/1.1：net/http 无法在 uTLS 连接上走 h2
func chromeHelloSpec() (*utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
	if err != nil {
		return nil, errors.Wrap(err, "transport: 生成 Chrome ClientHello 失败")
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return &spec, nil
}

// chromeRoundTripper 按代理分开连接池，每个池的 TLS 握手都使用 Chrome 指纹
type chromeRoundTripper struct {
	rootCAs *x509.CertPool
	dialer  net.Dialer

	mu         sync.Mutex
	transports map[string]*http.Transport // 代理 URL -> 连接池，"" 为直连
}

func newChromeRoundTripper(rootCAs *x509.CertPool) *chromeRoundTripper {
	return &chromeRoundTripper{
		rootCAs:    rootCAs,
		dialer:     net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
		transports: make(map[string]*http.Transport),
	}
}

func (rt *chromeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.transportFor(proxyFromContext(req.Context())).RoundTrip(req)
}

func (rt *chromeRoundTripper) transportFor(proxy *url.URL) *http.Transport {
	key := ""
	if proxy != nil {
		key = proxy.String()
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if tr, ok := rt.transports[key]; ok {
		return tr
	}
	tr := &http.Transport{
		// 明文请求交给 net/http 走代理；https 请求由 DialTLSContext 自己建隧道
		Proxy: func(r *http.Request) (*url.URL, error) {
			if proxy != nil && r.URL.Scheme == "http" {
				return proxy, nil
			}
			return nil, nil
		},
		DialContext: rt.dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return rt.dialTLS(ctx, network, addr, proxy)
		},
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: 256,
		IdleConnTimeout:     90 * time.Second,
	}
	rt.transports[key] = tr
	return tr
}

// CloseIdleConnections 关闭所有连接池的空闲连接
func (rt *chromeRoundTripper) CloseIdleConnections() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, tr := range rt.transports {
		tr.CloseIdleConnections()
	}
}

func (rt *chromeRoundTripper) dialTLS(ctx context.Context, network, addr string, proxy *url.URL) (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)
	if proxy != nil {
		conn, err = rt.dialTunnel(ctx, proxy, addr)
	} else {
		conn, err = rt.dialer.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	spec, err := chromeHelloSpec()
	if err != nil {
		conn.Close()
		return nil, err
	}
	uconn := utls.UClient(conn, &utls.Config{ServerName: host, RootCAs: rt.rootCAs}, utls.HelloCustom)
	if err := uconn.ApplyPreset(spec); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "transport: 应用 ClientHello 失败")
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "transport: TLS 握手失败 %s", addr)
	}
	return uconn, nil
}

// dialTunnel 通过 HTTP(S) 代理 CONNECT 到目标地址
func (rt *chromeRoundTripper) dialTunnel(ctx context.Context, proxy *url.URL, addr string) (net.Conn, error) {
	conn, err := rt.dialer.DialContext(ctx, "tcp", proxyAddr(proxy))
	if err != nil {
		return nil, errors.Wrapf(err, "transport: 连接代理失败 %s", proxy.Host)
	}
	if proxy.Scheme == "https" {
		tc := tls.Client(conn, &tls.Config{ServerName: proxy.Hostname()})
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "transport: 代理 TLS 握手失败 %s", proxy.Host)
		}
		conn = tc
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := proxy.User; u != nil {
		pass, _ := u.Password()
		req.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(u.Username()+":"+pass)))
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "transport: 发送 CONNECT 失败")
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "transport: 读取 CONNECT 响应失败")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, errors.Errorf("transport: 代理拒绝 CONNECT %s: %s", addr, resp.Status)
	}
	if br.Buffered() > 0 {
		conn.Close()
		return nil, errors.New("transport: 代理在握手前返回了多余数据")
	}
	return conn, nil
}

func proxyAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
