package parallel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelError)
	p, err := NewPool(Config{Workers: workers, ArenaBlocks: 64, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestPoolCountsEveryTask(t *testing.T) {
	p := newTestPool(t, 4)

	const n = 1000
	var counter atomic.Int64
	futures := make([]*Future[struct{}], 0, n)
	for i := 0; i < n; i++ {
		f, err := p.Go(func(*arena.Arena) error {
			counter.Add(1)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		require.NoError(t, f.Wait())
	}
	assert.Equal(t, int64(n), counter.Load())
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := newTestPool(t, 2)
	p.Shutdown()
	p.Shutdown()

	_, err := Submit(p, func(*arena.Arena) (int, error) { return 1, nil })
	assert.True(t, errors.Is(err, errors.ErrPoolShutdown))

	_, err = p.Go(func(*arena.Arena) error { return nil })
	assert.True(t, errors.Is(err, errors.ErrPoolShutdown))
}

func TestShutdownDrainsQueuedWork(t *testing.T) {
	p := newTestPool(t, 1)

	var ran atomic.Int64
	for i := 0; i < 50; i++ {
		_, err := p.Go(func(*arena.Arena) error {
			time.Sleep(100 * time.Microsecond)
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	p.Shutdown()
	assert.Equal(t, int64(50), ran.Load())
	assert.Equal(t, uint64(50), p.Completed())
}

func TestBurstsSeparatedByIdle(t *testing.T) {
	p := newTestPool(t, 3)

	var counter atomic.Int64
	for burst := 0; burst < 3; burst++ {
		futures := make([]*Future[struct{}], 0, 100)
		for i := 0; i < 100; i++ {
			f, err := p.Go(func(*arena.Arena) error {
				counter.Add(1)
				return nil
			})
			require.NoError(t, err)
			futures = append(futures, f)
		}
		for _, f := range futures {
			require.NoError(t, f.Wait())
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, int64(300), counter.Load())
}

func TestConcurrentSubmitters(t *testing.T) {
	p := newTestPool(t, 4)

	var counter atomic.Int64
	var g errgroup.Group
	for s := 0; s < 8; s++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				f, err := Submit(p, func(*arena.Arena) (int64, error) {
					return counter.Add(1), nil
				})
				if err != nil {
					return err
				}
				if _, err := f.Get(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1600), counter.Load())
}

func TestTaskErrorsReachFuture(t *testing.T) {
	p := newTestPool(t, 2)

	t.Run("returned error", func(t *testing.T) {
		want := errors.New("shard failed")
		f, err := Submit(p, func(*arena.Arena) (int, error) { return 0, want })
		require.NoError(t, err)
		_, err = f.Get()
		assert.True(t, errors.Is(err, want))
	})

	t.Run("panic", func(t *testing.T) {
		f, err := Submit(p, func(*arena.Arena) (int, error) { panic("bad bin") })
		require.NoError(t, err)
		_, err = f.Get()
		var panicErr *errors.PanicError
		require.True(t, errors.As(err, &panicErr))
		assert.Equal(t, "bad bin", panicErr.PanicValue)

		// The worker survives the panic.
		f2, err := Submit(p, func(*arena.Arena) (int, error) { return 7, nil })
		require.NoError(t, err)
		v, err := f2.Get()
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})
}

func TestWorkerArenaClearedBetweenTasks(t *testing.T) {
	p := newTestPool(t, 1)

	for i := 0; i < 3; i++ {
		f, err := Submit(p, func(a *arena.Arena) (int, error) {
			used := a.Used()
			buf, err := arena.Slice[float64](a, 16)
			if err != nil {
				return 0, err
			}
			for j := range buf {
				if buf[j] != 0 {
					return 0, errors.New("dirty arena")
				}
				buf[j] = 1
			}
			return used, nil
		})
		require.NoError(t, err)
		used, err := f.Get()
		require.NoError(t, err)
		assert.Zero(t, used)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultConfig().Workers, 1)
	assert.NoError(t, DefaultConfig().Validate())

	_, err := NewPool(Config{Workers: 0})
	assert.Error(t, err)
	_, err = NewPool(Config{Workers: 1, ArenaBlocks: -1})
	assert.Error(t, err)
}
