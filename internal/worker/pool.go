// Package worker runs a fixed set of long-lived goroutines that drain a
// dispatch queue. Each worker owns one item at a time and runs the handler
// to completion before taking the next.
package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sheerbytes/thrudrop/internal/dispatch"
)

// Handler processes one dequeued item. It must release any resources the
// item owns before returning.
type Handler[T any] func(ctx context.Context, item T)

// Pool is a fixed-size worker pool. It is never resized after New.
type Pool[T any] struct {
	size   int
	queue  *dispatch.Queue[T]
	handle Handler[T]
	logger *slog.Logger

	wg      sync.WaitGroup
	busy    atomic.Int32
	started atomic.Bool
}

// New creates a pool of size workers (at least one) consuming queue.
func New[T any](size int, queue *dispatch.Queue[T], handle Handler[T], logger *slog.Logger) *Pool[T] {
	if size < 1 {
		size = 1
	}
	return &Pool[T]{
		size:   size,
		queue:  queue,
		handle: handle,
		logger: logger,
	}
}

// Start launches the workers. Later calls are no-ops.
func (p *Pool[T]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has observed the queue shutdown signal.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}

// Size returns the fixed number of workers.
func (p *Pool[T]) Size() int {
	return p.size
}

// Busy returns how many workers currently own an item.
func (p *Pool[T]) Busy() int {
	return int(p.busy.Load())
}

func (p *Pool[T]) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		item, ok := p.queue.Dequeue()
		if !ok {
			p.logger.Debug("worker exiting", "worker", id)
			return
		}
		p.serve(ctx, id, item)
	}
}

func (p *Pool[T]) serve(ctx context.Context, id int, item T) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic",
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	p.handle(ctx, item)
}
