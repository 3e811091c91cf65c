package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrClosed is returned when work is submitted to a closed pool.
var ErrClosed = errors.New("worker pool closed")

// Pool is a bounded pool of worker goroutines. It hosts the blocking work of
// the system: subprocess execution and the model-based optimizer loop. Jobs
// are handed to workers over a channel and completion is signalled back on a
// per-job channel, so callers block without polling.
type Pool struct {
	jobs chan func()
	size int

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// DefaultSize returns the default pool width: min(4, NumCPU).
func DefaultSize() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New creates a pool with the given number of workers. A non-positive size
// falls back to DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	p := &Pool{
		jobs: make(chan func()),
		size: size,
		done: make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.done:
			return
		}
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn on a pool worker and blocks until it has finished. If ctx is
// done before a worker picks the job up, the job is abandoned and the context
// error is returned. Once fn has started, Do waits for it to return; fn is
// expected to honor ctx itself.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}

	<-finished
	return nil
}

// Close stops the workers. Queued jobs that have not been picked up are
// dropped; running jobs finish.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}
