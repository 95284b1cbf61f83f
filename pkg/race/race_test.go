package race

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThirdAttemptWinsOthersCancelled(t *testing.T) {
	var started, observed atomic.Int32

	res, err := First(context.Background(), 6, 0, func(ctx context.Context, i int) (string, error) {
		if i == 3 {
			return "ok", nil
		}
		started.Add(1)
		<-ctx.Done()
		observed.Add(1)
		return "", ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Winner)
	assert.Equal(t, "ok", res.Value)
	assert.NoError(t, res.Err)
	assert.Equal(t, Succeeded, res.Attempts[3].State)
	assert.Equal(t, 1, res.Count(Succeeded))
	assert.Equal(t, 5, res.Count(Cancelled))

	// 已启动的失败者都会收到取消
	assert.Eventually(t, func() bool {
		return observed.Load() == started.Load()
	}, time.Second, 5*time.Millisecond)
}

func TestFastFailureBeatsSlowSuccess(t *testing.T) {
	boom := errors.New("purchase blocked")

	res, err := First(context.Background(), 2, 0, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		select {
		case <-time.After(300 * time.Millisecond):
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Winner)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, Failed, res.Attempts[1].State)
	assert.Equal(t, Cancelled, res.Attempts[0].State)
}

// 五次尝试，编号 #1..#5 对应下标 0..4
func TestFiveAttemptRace(t *testing.T) {
	boom := errors.New("purchase blocked")

	tests := []struct {
		name      string
		attempt   func(ctx context.Context, i int) (string, error)
		winner    int
		state     State
		wantErr   error
		wantValue string
		cancelled int
	}{
		{
			name: "#3 succeeds first",
			attempt: func(ctx context.Context, i int) (string, error) {
				if i == 2 {
					return "bought", nil
				}
				<-ctx.Done()
				return "", ctx.Err()
			},
			winner:    2,
			state:     Succeeded,
			wantValue: "bought",
			cancelled: 4,
		},
		{
			name: "#1 fails before #2 succeeds",
			attempt: func(ctx context.Context, i int) (string, error) {
				switch i {
				case 0:
					return "", boom
				case 1:
					select {
					case <-time.After(200 * time.Millisecond):
						return "bought", nil
					case <-ctx.Done():
						return "", ctx.Err()
					}
				}
				<-ctx.Done()
				return "", ctx.Err()
			},
			winner:    0,
			state:     Failed,
			wantErr:   boom,
			cancelled: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := First(context.Background(), 5, 5*time.Millisecond, tt.attempt)
			require.NoError(t, err)

			assert.Equal(t, tt.winner, res.Winner)
			assert.Equal(t, tt.state, res.Attempts[tt.winner].State)
			assert.Equal(t, tt.wantValue, res.Value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			} else {
				assert.NoError(t, res.Err)
			}
			assert.Len(t, res.Attempts, 5)
			assert.Equal(t, 1, res.Count(tt.state))
			assert.Equal(t, tt.cancelled, res.Count(Cancelled))
		})
	}
}

func TestStaggeredStart(t *testing.T) {
	const stagger = 30 * time.Millisecond
	begin := time.Now()
	var startedLast atomic.Int64

	res, err := First(context.Background(), 3, stagger, func(ctx context.Context, i int) (struct{}, error) {
		if i == 2 {
			startedLast.Store(int64(time.Since(begin)))
			return struct{}{}, nil
		}
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Winner)
	assert.GreaterOrEqual(t, time.Duration(startedLast.Load()), 2*stagger)
	assert.Equal(t, 2*stagger, res.Attempts[2].Delay)
}

func TestPendingAttemptsNeverStart(t *testing.T) {
	var calls atomic.Int32

	res, err := First(context.Background(), 10, 50*time.Millisecond, func(ctx context.Context, i int) (int, error) {
		calls.Add(1)
		return i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Winner)
	assert.Equal(t, 9, res.Count(Cancelled))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParentCancelAbortsRace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := First(ctx, 3, 0, func(ctx context.Context, i int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, -1, res.Winner)
	assert.Equal(t, 3, res.Count(Cancelled))
}

func TestInvalidArguments(t *testing.T) {
	_, err := First(context.Background(), 0, 0, func(ctx context.Context, i int) (int, error) { return 0, nil })
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = First(ctx, 1, 0, func(ctx context.Context, i int) (int, error) { return 0, nil })
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}
