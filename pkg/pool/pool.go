package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/logger"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/metrics"
)

var (
	ErrRejected = errors.New("task was not accepted, pool is shut down")
	ErrPanic    = errors.New("task panicked")
)

type Option func(p *Pool)

func WithLogger(lg *log.Logger) Option {
	return func(p *Pool) {
		p.logger = logger.NewColorLogger(lg)
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pool) {
		p.metrics = c
	}
}

// Pool runs submitted tasks on a fixed number of goroutines. The queue is
// FIFO and unbounded.
type Pool struct {
	size     int
	queue    []func()
	shutdown bool
	mutex    sync.Mutex
	cond     *sync.Cond
	wg       sync.WaitGroup
	once     sync.Once
	logger   *logger.ColorLogger
	metrics  *metrics.Collector
}

// New starts a pool of size workers, size < 1 is fixed to 1.
func New(size int, options ...Option) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		size:   size,
		queue:  make([]func(), 0),
		logger: logger.NewColorLogger(nil),
	}
	p.cond = sync.NewCond(&p.mutex)

	for _, op := range options {
		op(p)
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}

	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mutex.Lock()
		for !p.shutdown && len(p.queue) == 0 {
			p.cond.Wait()
		}
		if len(p.queue) == 0 { // shut down and drained
			p.mutex.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		depth := len(p.queue)
		p.mutex.Unlock()

		p.metrics.SetQueueDepth(depth)
		task()
	}
}

func (p *Pool) push(task func()) bool {
	p.mutex.Lock()
	if p.shutdown {
		p.mutex.Unlock()
		return false
	}
	p.queue = append(p.queue, task)
	depth := len(p.queue)
	p.mutex.Unlock()

	p.cond.Signal()
	p.metrics.TaskAccepted()
	p.metrics.SetQueueDepth(depth)
	return true
}

// Submit queues fn on p. After shutdown the task is not run and the returned
// future is not valid.
func Submit[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := &Future[T]{
		done:     make(chan struct{}),
		accepted: true,
	}

	task := func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%w: %v", ErrPanic, r)
				p.metrics.TaskPanicked()
				p.logger.Errorf("pool :: recovered task panic %v", r)
			}
		}()
		f.value, f.err = fn()
	}

	if !p.push(task) {
		p.metrics.TaskRejected()
		return &Future[T]{}
	}
	return f
}

// Go queues a task without a result.
func (p *Pool) Go(fn func()) *Future[struct{}] {
	return Submit(p, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
}

func (p *Pool) Size() int {
	return p.size
}

// Pending returns the number of queued tasks not yet picked by a worker.
func (p *Pool) Pending() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.queue)
}

func (p *Pool) IsShutdown() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.shutdown
}

// Shutdown stops accepting tasks and wakes idle workers. Queued tasks still
// run, workers exit once the queue is empty.
func (p *Pool) Shutdown() {
	p.mutex.Lock()
	p.shutdown = true
	p.mutex.Unlock()

	p.cond.Broadcast()
}

// Close shuts the pool down and waits for every worker to exit. It must not
// be called from a task.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.Shutdown()
		p.wg.Wait()
	})
}

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	done     chan struct{}
	value    T
	err      error
	accepted bool
}

// Valid reports whether the task was accepted by the pool.
func (f *Future[T]) Valid() bool {
	return f != nil && f.accepted
}

// Done is closed once the task finished. It is nil for an invalid future.
func (f *Future[T]) Done() <-chan struct{} {
	if !f.Valid() {
		return nil
	}
	return f.done
}

// Wait blocks until the task finished or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	if !f.Valid() {
		return zero, ErrRejected
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (f *Future[T]) Get() (T, error) {
	return f.Wait(context.Background())
}
