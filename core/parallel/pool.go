package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
)

// DefaultArenaBlocks is the per-worker arena size in 64-byte blocks.
const DefaultArenaBlocks = 16500

// Task is the unit of work run by a pool worker. It receives the worker's
// arena, which is cleared as soon as the task returns, so nothing allocated
// from it may outlive the task.
type Task func(a *arena.Arena)

// Config configures a Pool.
type Config struct {
	// Workers is the number of worker goroutines.
	Workers int
	// ArenaBlocks sizes each worker's arena.
	ArenaBlocks int
	// Logger receives lifecycle events. Nil selects the "parallel" component logger.
	Logger log.Logger
}

// DefaultConfig uses one worker per CPU but one, with a minimum of one.
func DefaultConfig() Config {
	return Config{
		Workers:     max(runtime.NumCPU()-1, 1),
		ArenaBlocks: DefaultArenaBlocks,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return errors.NewValidationError("workers", "must be >= 1", c.Workers)
	}
	if c.ArenaBlocks < 0 {
		return errors.NewValidationError("arena_blocks", "must be >= 0", c.ArenaBlocks)
	}
	return nil
}

// Pool is a fixed set of workers, each owning one arena, fed by a single
// blocking queue. One pool is meant to be shared by everything in a process
// that trains models; construct it once and pass it down.
type Pool struct {
	cfg    Config
	logger log.Logger
	queue  *Queue[Task]
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	once   sync.Once

	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewPool starts cfg.Workers workers.
func NewPool(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("parallel")
	}

	p := &Pool{cfg: cfg, logger: logger, queue: NewQueue[Task]()}
	for i := 0; i < cfg.Workers; i++ {
		// Arenas are created up front so a bad size fails NewPool, not a worker.
		a, err := arena.New(cfg.ArenaBlocks)
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		p.wg.Add(1)
		go p.work(a)
	}

	logger.Debug("worker pool started",
		log.WorkersKey, cfg.Workers,
		log.ArenaBytesKey, cfg.ArenaBlocks*arena.BlockSize,
	)
	return p, nil
}

func (p *Pool) work(a *arena.Arena) {
	defer p.wg.Done()
	defer a.Free()
	for {
		task, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		task(a)
		a.Clear()
		p.completed.Add(1)
	}
}

func (p *Pool) enqueue(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.WithStack(errors.ErrPoolShutdown)
	}
	p.submitted.Add(1)
	p.queue.Enqueue(t)
	return nil
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Completed returns the number of tasks that have finished.
func (p *Pool) Completed() uint64 {
	return p.completed.Load()
}

// Shutdown rejects further submissions, runs every queued task and waits for
// the workers to exit. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.queue.SetStop()
		p.wg.Wait()

		p.logger.Debug("worker pool stopped",
			"tasks_submitted", p.submitted.Load(),
			"tasks_completed", p.completed.Load(),
		)
	})
}

// Submit queues fn and returns its future without waiting. It fails with
// ErrPoolShutdown after Shutdown. Errors and panics from fn are delivered
// through the future.
func Submit[T any](p *Pool, fn func(a *arena.Arena) (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	err := p.enqueue(func(a *arena.Arena) {
		var val T
		err := errors.SafeExecute("parallel.Submit", func() error {
			var err error
			val, err = fn(a)
			return err
		})
		f.resolve(val, err)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Go is Submit for tasks without a result.
func (p *Pool) Go(fn func(a *arena.Arena) error) (*Future[struct{}], error) {
	return Submit(p, func(a *arena.Arena) (struct{}, error) {
		return struct{}{}, fn(a)
	})
}
