package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of work run by a Pool worker. The context is the pool's
// own and is canceled by Close.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed set of goroutines fed from a buffered queue.
type Pool struct {
	jobs chan Job

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	size      int
	active    atomic.Int64
	completed atomic.Int64
}

// NewPool starts size workers. A non-positive size means ForIO(0), and a
// negative queue means an unbuffered one.
func NewPool(size, queue int) *Pool {
	if size <= 0 {
		size = ForIO(0)
	}
	if queue < 0 {
		queue = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan Job, queue),
		ctx:    ctx,
		cancel: cancel,
		size:   size,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.active.Add(1)
		job(p.ctx)
		p.active.Add(-1)
		p.completed.Add(1)
	}
}

// Submit queues job, blocking while the queue is full. It fails with
// ctx.Err() if ctx ends first, or ErrPoolClosed once Close has begun.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Close cancels the pool context, drains queued jobs and waits for the
// workers to exit. Queued jobs still run and should check their context.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()

		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Active returns the number of jobs currently running.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Completed returns the number of jobs that have finished.
func (p *Pool) Completed() int64 { return p.completed.Load() }
