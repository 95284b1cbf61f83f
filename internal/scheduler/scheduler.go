// Package scheduler 定时任务：固定间隔执行，同一任务不会重叠运行。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Job 定时任务
type Job struct {
	Name      string
	Interval  time.Duration
	Immediate bool // 启动时立即执行一次
	Run       func(ctx context.Context) error
}

// JobStatus 任务运行状态
type JobStatus struct {
	Name      string    `json:"name"`
	Interval  string    `json:"interval"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type jobState struct {
	job Job

	mu     sync.Mutex
	status JobStatus
}

// Scheduler 定时任务调度
type Scheduler struct {
	mu      sync.Mutex
	jobs    []*jobState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	log *logrus.Entry
}

// New 创建调度器
func New() *Scheduler {
	return &Scheduler{log: logrus.WithField("component", "scheduler")}
}

// Add 注册任务，必须在 Start 之前调用
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: 任务名称和执行函数不能为空")
	}
	if job.Interval <= 0 {
		return errors.Errorf("scheduler: 任务 %s 的间隔必须大于 0", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.Errorf("scheduler: 已启动，无法注册 %s", job.Name)
	}
	for _, st := range s.jobs {
		if st.job.Name == job.Name {
			return errors.Errorf("scheduler: 任务 %s 已存在", job.Name)
		}
	}
	s.jobs = append(s.jobs, &jobState{
		job:    job,
		status: JobStatus{Name: job.Name, Interval: job.Interval.String()},
	})
	s.log.Infof("✅ 任务已注册: %s (每 %s)", job.Name, job.Interval)
	return nil
}

// Start 启动所有任务，ctx 结束或 Stop 时退出
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: 重复启动")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(len(s.jobs))
	for _, st := range s.jobs {
		go func(st *jobState) {
			defer s.wg.Done()
			s.loop(ctx, st)
		}(st)
	}
	s.log.Infof("调度器已启动，共 %d 个任务", len(s.jobs))
	return nil
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("调度器已停止")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "scheduler: 等待任务结束超时")
	}
}

// Status 各任务状态
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	jobs := append([]*jobState(nil), s.jobs...)
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, st := range jobs {
		st.mu.Lock()
		out = append(out, st.status)
		st.mu.Unlock()
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, st *jobState) {
	if st.job.Immediate {
		s.runOnce(ctx, st)
	}
	// 任务执行期间到期的 tick 最多保留一个，慢任务不会堆积
	t := time.NewTicker(st.job.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runOnce(ctx, st)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, st *jobState) {
	if ctx.Err() != nil {
		return
	}
	st.mu.Lock()
	st.status.Running = true
	st.status.LastRun = time.Now()
	st.mu.Unlock()

	err := safeRun(ctx, st.job.Run)

	st.mu.Lock()
	st.status.Running = false
	st.status.Runs++
	if err != nil {
		st.status.Failures++
		st.status.LastError = err.Error()
	} else {
		st.status.LastError = ""
	}
	st.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.log.Errorf("❌ 任务 %s 执行失败: %v", st.job.Name, err)
	}
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
