// Package shutdown 按注册顺序执行的关闭流程
package shutdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type hook struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
// 回调按注册顺序依次执行（先停入口，再释放底层资源）
type Manager struct {
	mu    sync.Mutex
	hooks []hook
	done  bool
	log   *logrus.Entry
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{log: logrus.WithField("component", "shutdown")}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, handler: handler})
}

// Shutdown 依次执行所有回调，只执行一次
// ctx 超时后剩余回调仍会执行（拿到的是已结束的 ctx）
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	hooks := m.hooks
	m.mu.Unlock()

	if len(hooks) == 0 {
		m.log.Info("没有注册的关闭回调")
		return nil
	}
	m.log.Infof("开始优雅关闭，共 %d 个回调", len(hooks))

	var errs []error
	for _, h := range hooks {
		start := time.Now()
		if err := h.handler(ctx); err != nil {
			m.log.Errorf("❌ %s 关闭失败: %v", h.name, err)
			errs = append(errs, err)
			continue
		}
		m.log.Infof("✅ %s 已关闭 (%s)", h.name, time.Since(start).Round(time.Millisecond))
	}
	if ctx.Err() != nil {
		m.log.Warnf("关闭超时: %v", ctx.Err())
	}
	return errors.Join(errs...)
}
