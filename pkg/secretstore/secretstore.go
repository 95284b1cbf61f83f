package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const sessionPrefix = "session/"

// Store 登录态持久化（Badger），加密由 Badger 选项提供
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 16/24/32 字节；为空则不加密
	InMemory      bool   // 测试用
}

// Session 持久化的登录态
type Session struct {
	Address     string    `json:"address"`
	Wat         string    `json:"wat"`
	Wrt         string    `json:"wrt"`
	WatExpireAt string    `json:"watExpireAt,omitempty"`
	WrtExpireAt string    `json:"wrtExpireAt,omitempty"`
	SavedAt     time.Time `json:"savedAt"`
}

func Open(opts OpenOptions) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	path := opts.Path
	if opts.InMemory {
		path = ""
	}
	bopts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithInMemory(opts.InMemory)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 需要 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(16 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "secretstore: 打开失败")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, false, errors.New("secretstore: key is empty")
	}
	var out []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

func (s *Store) set(key string, val []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(k, val)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *Store) GetString(key string) (string, bool, error) {
	v, ok, err := s.get(key)
	return string(v), ok, err
}

func (s *Store) SetString(key string, val string) error {
	return s.set(key, []byte(val), 0)
}

// Delete 删除 key，不存在不报错
func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(strings.TrimSpace(key)))
	})
}

// SaveSession 保存登录态，ttl > 0 时到期自动失效
func (s *Store) SaveSession(identity string, sess Session, ttl time.Duration) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "secretstore: 序列化登录态失败")
	}
	return s.set(sessionPrefix+identity, b, ttl)
}

// LoadSession 读取登录态
func (s *Store) LoadSession(identity string) (*Session, bool, error) {
	b, ok, err := s.get(sessionPrefix + identity)
	if err != nil || !ok {
		return nil, false, err
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, false, errors.Wrap(err, "secretstore: 登录态数据损坏")
	}
	return &sess, true, nil
}

// DeleteSession 删除登录态
func (s *Store) DeleteSession(identity string) error {
	return s.Delete(sessionPrefix + identity)
}

// ParseKey 解析加密 key：hex、base64 或原始字节，长度须为 16/24/32。为空返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	candidates := [][]byte{}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		candidates = append(candidates, b)
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		candidates = append(candidates, b)
	}
	candidates = append(candidates, []byte(raw))
	for _, b := range candidates {
		switch len(b) {
		case 16, 24, 32:
			return b, nil
		}
	}
	return nil, errors.New("key must decode to 16, 24 or 32 bytes (hex, base64 or raw)")
}
