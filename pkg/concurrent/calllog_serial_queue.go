// Package concurrent holds the execution primitives shared by the refresh
// pipeline and the realtime row processor.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is delivered to jobs submitted to, or still queued in, a closed queue.
var ErrQueueClosed = errors.New("serial queue closed")

type serialJob struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// SerialQueue runs submitted jobs one at a time, in submission order, on a
// single goroutine. Each Submit gets its own result channel that resolves
// when that job (not an earlier one) has finished.
type SerialQueue struct {
	jobs chan serialJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewSerialQueue starts the queue goroutine. size is the number of jobs that
// may wait without blocking Submit.
func NewSerialQueue(size int) *SerialQueue {
	if size < 0 {
		size = 0
	}
	q := &SerialQueue{
		jobs: make(chan serialJob, size),
		done: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues fn. The returned channel receives exactly one value.
// A job whose ctx is already done when its turn comes is not run.
func (q *SerialQueue) Submit(ctx context.Context, fn func(ctx context.Context) error) <-chan error {
	result := make(chan error, 1)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		result <- ErrQueueClosed
		return result
	}

	select {
	case q.jobs <- serialJob{ctx: ctx, fn: fn, result: result}:
	case <-ctx.Done():
		result <- ctx.Err()
	}
	return result
}

// Do submits fn and waits for its result.
func (q *SerialQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case err := <-q.Submit(ctx, fn):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, fails the ones still queued and waits for the
// running job to finish.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *SerialQueue) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			q.drain()
			return
		case job := <-q.jobs:
			job.result <- q.execute(job)
		}
	}
}

func (q *SerialQueue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.result <- ErrQueueClosed
		default:
			return
		}
	}
}

func (q *SerialQueue) execute(job serialJob) (err error) {
	if ctxErr := job.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serial job panicked: %v", r)
		}
	}()
	return job.fn(job.ctx)
}
