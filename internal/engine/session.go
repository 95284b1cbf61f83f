package engine

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/msubot/internal/metrics"
	"github.com/betbot/msubot/msu/client"
	"github.com/betbot/msubot/msu/signing"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/secretstore"
	"github.com/betbot/msubot/pkg/transport"
)

// Cookie 名称
const (
	CookieWat = "msu_wat"
	CookieWrt = "msu_wrt"
)

// sessionTTL 持久化登录态的保留时间，过期后需重新登录
const sessionTTL = 24 * time.Hour

// SessionStore 登录态持久化
type SessionStore interface {
	SaveSession(identity string, sess secretstore.Session, ttl time.Duration) error
	LoadSession(identity string) (*secretstore.Session, bool, error)
	DeleteSession(identity string) error
}

// Tokens 登录凭证
type Tokens struct {
	Wat         string `json:"wat"`
	Wrt         string `json:"wrt"`
	WatExpireAt string `json:"watExpireAt,omitempty"`
	WrtExpireAt string `json:"wrtExpireAt,omitempty"`
}

// Session 管理单个钱包的登录态
// 只有重新 Login 才会刷新 token，不根据过期时间自动刷新
type Session struct {
	identity string
	address  string
	key      *ecdsa.PrivateKey
	client   *client.Client
	tr       transport.Transport
	store    SessionStore

	mu     sync.RWMutex
	tokens Tokens

	log *logrus.Entry
}

func newSession(identity string, key *ecdsa.PrivateKey, c *client.Client, tr transport.Transport, store SessionStore) *Session {
	return &Session{
		identity: identity,
		address:  c.Address(),
		key:      key,
		client:   c,
		tr:       tr,
		store:    store,
		log:      logrus.WithFields(logrus.Fields{"component": "session", "identity": identity}),
	}
}

func expireString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	}
	return fmt.Sprint(v)
}

// Login 获取挑战、签名、提交，成功后保存 token 并写入 cookie
// 任何失败都返回 LOGIN_FAILED，不重试
func (s *Session) Login(ctx context.Context) error {
	metrics.LoginAttempts.Add(1)
	s.log.Info("🔐 开始登录")

	fail := func(err error, step string) error {
		metrics.LoginFailures.Add(1)
		s.log.Errorf("❌ 登录失败 (%s): %v", step, err)
		return types.WrapError(err, types.CodeLoginFailed, "登录失败: %s", step)
	}

	msg, err := s.client.LoginMessage(ctx)
	if err != nil {
		return fail(err, "获取message")
	}
	sig, err := signing.SignMessage(msg, s.key)
	if err != nil {
		return fail(err, "签名")
	}
	res, err := s.client.SignIn(ctx, sig)
	if err != nil {
		return fail(err, "提交签名")
	}

	s.SetTokens(Tokens{
		Wat:         res.Wat,
		Wrt:         res.Wrt,
		WatExpireAt: expireString(res.WatExpireAt),
		WrtExpireAt: expireString(res.WrtExpireAt),
	})
	s.log.Info("✅ 登录成功")
	return nil
}

// SetTokens 手动设置 token（同时写入 cookie 和持久化）
func (s *Session) SetTokens(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()

	if err := s.tr.SetCookies(map[string]string{CookieWat: t.Wat, CookieWrt: t.Wrt}); err != nil {
		s.log.Warnf("请求层不支持 cookie，仅通过请求头携带 token: %v", err)
	}
	if s.store != nil {
		err := s.store.SaveSession(s.identity, secretstore.Session{
			Address:     s.address,
			Wat:         t.Wat,
			Wrt:         t.Wrt,
			WatExpireAt: t.WatExpireAt,
			WrtExpireAt: t.WrtExpireAt,
		}, sessionTTL)
		if err != nil {
			s.log.Warnf("保存登录态失败: %v", err)
		}
	}
}

// Restore 从持久化存储恢复登录态，成功返回 true
func (s *Session) Restore() bool {
	if s.store == nil {
		return false
	}
	sess, ok, err := s.store.LoadSession(s.identity)
	if err != nil {
		s.log.Warnf("读取登录态失败: %v", err)
		return false
	}
	if !ok || sess.Wat == "" || sess.Wrt == "" {
		return false
	}
	s.mu.Lock()
	s.tokens = Tokens{Wat: sess.Wat, Wrt: sess.Wrt, WatExpireAt: sess.WatExpireAt, WrtExpireAt: sess.WrtExpireAt}
	s.mu.Unlock()
	if err := s.tr.SetCookies(map[string]string{CookieWat: sess.Wat, CookieWrt: sess.Wrt}); err != nil && !errors.Is(err, transport.ErrUnsupported) {
		s.log.Warnf("恢复 cookie 失败: %v", err)
	}
	s.log.Infof("已恢复登录态 (保存于 %s)", sess.SavedAt.Format(time.RFC3339))
	return true
}

// Clear 清除 token 和 cookie
func (s *Session) Clear() {
	s.mu.Lock()
	s.tokens = Tokens{}
	s.mu.Unlock()

	if err := s.tr.ClearCookies(); err != nil && !errors.Is(err, transport.ErrUnsupported) {
		s.log.Warnf("清除 cookie 失败: %v", err)
	}
	if s.store != nil {
		if err := s.store.DeleteSession(s.identity); err != nil {
			s.log.Warnf("删除登录态失败: %v", err)
		}
	}
}

// IsAuthenticated wat 和 wrt 都存在
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Wat != "" && s.tokens.Wrt != ""
}

// Tokens 当前 token
func (s *Session) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// AuthHeaders 认证请求头，未登录返回空
func (s *Session) AuthHeaders() map[string]string {
	t := s.Tokens()
	if t.Wat == "" || t.Wrt == "" {
		return map[string]string{}
	}
	return map[string]string{
		"Authorization":   "Bearer " + t.Wat,
		"X-Refresh-Token": t.Wrt,
		"x-msu-address":   s.address,
	}
}
