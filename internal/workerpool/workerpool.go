// Package workerpool implements a fixed-size FIFO worker pool: Submit,
// QueueDepth, WorkerCount, PoolStopped on submit after Shutdown, and an
// idempotent Shutdown.
//
// Backpressure beyond the channel buffer uses golang.org/x/sync/semaphore
// to bound how many tasks may be queued-or-running at once, so Submit
// blocks (rather than growing the queue unboundedly) once that capacity is
// spent.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolStopped is returned by Submit once Shutdown has been called.
var ErrPoolStopped = errors.New("workerpool: pool stopped")

type task struct {
	run func()
}

// Pool is a fixed-size pool of goroutines draining a FIFO queue of tasks.
type Pool struct {
	numWorkers int
	queueCap   int64

	workCh chan task
	stopCh chan struct{}
	wg     sync.WaitGroup

	sem *semaphore.Weighted

	closed   atomic.Bool
	submitMu sync.RWMutex

	queued atomic.Int64
}

// New starts a Pool with numWorkers goroutines and a queue capacity of
// queueCapacity tasks in flight (queued or running). numWorkers must be
// ≥ 1; queueCapacity defaults to 4*numWorkers when ≤ 0.
func New(numWorkers int, queueCapacity int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = numWorkers * 4
	}

	p := &Pool{
		numWorkers: numWorkers,
		queueCap:   int64(queueCapacity),
		workCh:     make(chan task, queueCapacity),
		stopCh:     make(chan struct{}),
		sem:        semaphore.NewWeighted(int64(queueCapacity)),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			p.drain()
			return
		case t, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(t)
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case t, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(t)
		default:
			return
		}
	}
}

func (p *Pool) run(t task) {
	defer p.sem.Release(1)
	defer p.queued.Add(-1)
	t.run()
}

// Future is the handle Submit returns: Get blocks until the task
// completes or ctx is done.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Get blocks until the task resolves or ctx is done, whichever comes first.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit enqueues fn and returns a Future for its result. Submitting after
// Shutdown returns ErrPoolStopped synchronously (the future is never
// created). Submit blocks (respecting ctx) once queueCapacity in-flight
// tasks are already queued or running.
func Submit[T any](p *Pool, ctx context.Context, fn func() (T, error)) (*Future[T], error) {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return nil, ErrPoolStopped
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	future := newFuture[T]()
	t := task{run: func() {
		val, err := fn()
		future.resolve(val, err)
	}}

	p.queued.Add(1)
	select {
	case p.workCh <- t:
		return future, nil
	case <-p.stopCh:
		p.queued.Add(-1)
		p.sem.Release(1)
		return nil, ErrPoolStopped
	case <-ctx.Done():
		p.queued.Add(-1)
		p.sem.Release(1)
		return nil, ctx.Err()
	}
}

// QueueDepth returns the number of tasks currently queued or running.
func (p *Pool) QueueDepth() int {
	return int(p.queued.Load())
}

// WorkerCount returns the number of worker goroutines in the pool.
func (p *Pool) WorkerCount() int {
	return p.numWorkers
}

// Shutdown stops accepting new tasks, drains the queue, and waits for all
// workers to finish. Idempotent: calling it more than once is a no-op past
// the first call.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.submitMu.Lock()
	close(p.stopCh)
	close(p.workCh)
	p.submitMu.Unlock()

	p.wg.Wait()
}
