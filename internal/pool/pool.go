// Package pool runs browse, download and extract tasks on a small fixed set
// of workers so callers are never blocked by network or disk I/O.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/retro/rshop/internal/constants"
	"github.com/retro/rshop/internal/logging"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown has started.
	ErrPoolClosed = errors.New("task pool is shut down")
	// ErrQueueFull is returned when the bounded backlog is full.
	ErrQueueFull = errors.New("task pool queue is full")
)

// Task is a unit of work. ctx is cancelled when the pool is force-stopped.
type Task func(ctx context.Context)

// Pool is a fixed-size, queue-backed executor.
type Pool struct {
	queue  chan Task
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts a pool with the given number of workers and queue capacity.
// Non-positive values fall back to the defaults.
func New(workers, queueSize int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = constants.PoolWorkers
	}
	if queueSize <= 0 {
		queueSize = constants.PoolQueueSize
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan Task, queueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues task and returns immediately.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run submits fn and waits for its result. The caller's ctx only bounds the
// wait; it does not interrupt fn once it has started.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	err := p.Submit(func(workerCtx context.Context) {
		v, err := fn(workerCtx)
		done <- result{v, err}
	})
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.queue {
		if p.ctx.Err() != nil {
			// forced stop: queued tasks are dropped
			p.logger.Debug().Int("worker", id).Msg("Dropping queued task after forced stop")
			continue
		}
		p.execute(id, task)
	}
}

func (p *Pool) execute(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker", id).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Task panicked; worker continues")
		}
	}()
	task(p.ctx)
}

// Shutdown stops accepting tasks and lets queued ones drain for up to grace.
// If they have not finished by then, the worker context is cancelled so
// running tasks abort at their next I/O boundary. Returns true if the drain
// completed within grace.
func (p *Pool) Shutdown(grace time.Duration) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return true
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-finished:
		p.cancel()
		return true
	case <-timer.C:
		p.logger.Warn().Dur("grace", grace).Msg("Task pool did not drain in time; forcing stop")
		p.cancel()
		return false
	}
}
