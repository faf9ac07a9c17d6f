package signaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsJobsInPostOrder(t *testing.T) {
	d := newDispatcher()
	go d.run()
	defer d.close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, d.post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, d.do(context.Background(), func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestDispatcherDoReturnsJobError(t *testing.T) {
	d := newDispatcher()
	go d.run()
	defer d.close()

	err := d.do(context.Background(), func() error { return domain.ErrSignalingApply })
	require.ErrorIs(t, err, domain.ErrSignalingApply)
}

func TestDispatcherClosed(t *testing.T) {
	d := newDispatcher()
	go d.run()
	d.close()
	d.close()

	require.False(t, d.post(func() {}))
	require.ErrorIs(t, d.do(context.Background(), func() error { return nil }), domain.ErrSessionClosed)
}

func TestDispatcherDoHonoursContext(t *testing.T) {
	d := newDispatcher()
	go d.run()
	defer d.close()

	release := make(chan struct{})
	d.post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.do(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
