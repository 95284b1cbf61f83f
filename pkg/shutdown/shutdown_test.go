package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksInOrder(t *testing.T) {
	m := NewManager()
	var order []string
	for _, name := range []string{"scheduler", "http", "registry"} {
		name := name
		m.OnShutdown(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"scheduler", "http", "registry"}, order)

	// 第二次调用不再执行
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownContinuesAfterErrors(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	ran := false
	m.OnShutdown("bad", func(ctx context.Context) error { return boom })
	m.OnShutdown("good", func(ctx context.Context) error { ran = true; return nil })

	err := m.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)
}

func TestShutdownRunsRemainingHooksAfterTimeout(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	var sawDone bool
	m.OnShutdown("slow", func(ctx context.Context) error { cancel(); return nil })
	m.OnShutdown("close", func(ctx context.Context) error { sawDone = ctx.Err() != nil; return nil })

	require.NoError(t, m.Shutdown(ctx))
	assert.True(t, sawDone)
}

func TestShutdownWithoutHooks(t *testing.T) {
	assert.NoError(t, NewManager().Shutdown(context.Background()))
}
