// Package race 并发竞速：固定数量的尝试按间隔依次启动，第一个结束的尝试决定结果，其余全部取消。
package race

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// State 尝试状态
type State int32

const (
	Pending State = iota
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Attempt 单个尝试的快照
type Attempt struct {
	Index int
	Delay time.Duration
	State State
}

// Result 竞速结果
// Winner 为 -1 表示没有尝试胜出（被外部取消）
type Result[T any] struct {
	Winner   int
	Value    T
	Err      error
	Attempts []Attempt
}

// Count 某状态的尝试数量
func (r Result[T]) Count(s State) int {
	n := 0
	for _, a := range r.Attempts {
		if a.State == s {
			n++
		}
	}
	return n
}

// Func 单个尝试，ctx 在竞速结束后取消
type Func[T any] func(ctx context.Context, index int) (T, error)

const (
	noWinner = -1
	aborted  = -2
)

type racer[T any] struct {
	stagger time.Duration
	states  []atomic.Int32
	winner  atomic.Int64
	done    chan struct{}

	value T
	err   error
}

// First 启动 n 个尝试，第 i 个在 i*stagger 后开始；
// 第一个结束（成功或失败）的尝试胜出，此刻仍在进行的尝试全部标记为取消并取消其 ctx。
// 外部 ctx 结束时所有尝试被取消并返回错误。
func First[T any](ctx context.Context, n int, stagger time.Duration, fn Func[T]) (Result[T], error) {
	if n <= 0 {
		return Result[T]{Winner: noWinner}, errors.Errorf("race: 尝试次数必须大于 0: %d", n)
	}
	if err := ctx.Err(); err != nil {
		return Result[T]{Winner: noWinner}, errors.Wrap(err, "race: 未开始")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	r := &racer[T]{
		stagger: stagger,
		states:  make([]atomic.Int32, n),
		done:    make(chan struct{}),
	}
	r.winner.Store(noWinner)

	for i := 0; i < n; i++ {
		go r.run(raceCtx, i, fn)
	}

	select {
	case <-r.done:
		cancel()
		return r.result(), nil
	case <-ctx.Done():
		if r.winner.CompareAndSwap(noWinner, aborted) {
			r.cancelPending(noWinner)
			cancel()
			return r.result(), errors.Wrap(ctx.Err(), "race: 已取消")
		}
		// 同一时刻已有尝试胜出
		<-r.done
		cancel()
		return r.result(), nil
	}
}

func (r *racer[T]) run(ctx context.Context, i int, fn Func[T]) {
	if delay := time.Duration(i) * r.stagger; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.states[i].CompareAndSwap(int32(Pending), int32(Cancelled))
			return
		}
	}
	if ctx.Err() != nil {
		r.states[i].CompareAndSwap(int32(Pending), int32(Cancelled))
		return
	}

	v, err := fn(ctx, i)

	// 竞速已结束的尝试不能胜出
	if ctx.Err() == nil && r.winner.CompareAndSwap(noWinner, int64(i)) {
		st := Succeeded
		if err != nil {
			st = Failed
		}
		r.states[i].Store(int32(st))
		r.value, r.err = v, err
		r.cancelPending(i)
		close(r.done)
		return
	}
	r.states[i].CompareAndSwap(int32(Pending), int32(Cancelled))
}

func (r *racer[T]) cancelPending(except int) {
	for i := range r.states {
		if i != except {
			r.states[i].CompareAndSwap(int32(Pending), int32(Cancelled))
		}
	}
}

func (r *racer[T]) result() Result[T] {
	res := Result[T]{
		Winner:   int(r.winner.Load()),
		Attempts: make([]Attempt, len(r.states)),
	}
	if res.Winner < 0 {
		res.Winner = noWinner
	} else {
		res.Value, res.Err = r.value, r.err
	}
	for i := range r.states {
		res.Attempts[i] = Attempt{
			Index: i,
			Delay: time.Duration(i) * r.stagger,
			State: State(r.states[i].Load()),
		}
	}
	return res
}
