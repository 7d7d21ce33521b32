package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_SubmitDeliversResultOnce(t *testing.T) {
	pool, err := NewPool(context.Background(), Options{Size: 2})
	require.NoError(t, err)

	boom := errors.New("boom")
	done, err := pool.Submit("job-1", func(ctx context.Context) error { return boom })
	require.NoError(t, err)

	require.ErrorIs(t, <-done, boom)
	_, open := <-done
	require.False(t, open)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool, err := NewPool(context.Background(), Options{Size: 2})
	require.NoError(t, err)

	var running, peak int32
	release := make(chan struct{})
	var results []<-chan error
	for i := 0; i < 6; i++ {
		done, err := pool.Submit("task", func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return nil
		})
		require.NoError(t, err)
		results = append(results, done)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, done := range results {
		require.NoError(t, <-done)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPool_RecoversPanics(t *testing.T) {
	var finished error
	pool, err := NewPool(context.Background(), Options{
		Size:     1,
		OnFinish: func(name string, err error) { finished = err },
	})
	require.NoError(t, err)

	done, err := pool.Submit("panicky", func(ctx context.Context) error { panic("bad row") })
	require.NoError(t, err)
	require.ErrorIs(t, <-done, ErrTaskPanicked)
	require.ErrorIs(t, finished, ErrTaskPanicked)
}

func TestPool_ShutdownRejectsNewTasks(t *testing.T) {
	pool, err := NewPool(context.Background(), Options{Size: 1})
	require.NoError(t, err)

	require.NoError(t, pool.Shutdown(context.Background()))

	_, err = pool.Submit("late", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ShutdownDeadlineCancelsTasks(t *testing.T) {
	pool, err := NewPool(context.Background(), Options{Size: 1})
	require.NoError(t, err)

	done, err := pool.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNewPool_RequiresContext(t *testing.T) {
	//nolint:staticcheck
	_, err := NewPool(nil, Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPool_ShutdownAbandonsQueuedTasks(t *testing.T) {
	pool, err := NewPool(context.Background(), Options{Size: 1})
	require.NoError(t, err)

	release := make(chan struct{})
	busy, err := pool.Submit("busy", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	var abandoned atomic.Bool
	var ran atomic.Bool
	queued, err := pool.Submit("queued", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, OnAbandon(func(err error) {
		if errors.Is(err, ErrTaskAbandoned) {
			abandoned.Store(true)
		}
	}))
	require.NoError(t, err)

	shutdown := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		shutdown <- pool.Shutdown(ctx)
	}()

	err = <-queued
	require.ErrorIs(t, err, ErrTaskAbandoned)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, abandoned.Load())
	require.False(t, ran.Load())

	close(release)
	require.NoError(t, <-busy)
	require.ErrorIs(t, <-shutdown, context.DeadlineExceeded)
}
