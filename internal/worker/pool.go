// ABOUTME: Bounded pool for fire-and-forget background tasks
// ABOUTME: Submit never blocks; tasks queue on a FIFO semaphore for a free slot

// Package worker runs detached background tasks with bounded concurrency.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of tasks that may run at once.
const DefaultSize = 5

// Task is a unit of background work. The context is detached from the caller.
type Task func(ctx context.Context) error

// Pool runs tasks with at most size running concurrently.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a pool. A size below one uses DefaultSize.
func New(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger.With("component", "worker"),
	}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return p.size }

// Submit queues a task and returns immediately. Errors and panics are logged
// with name and never reach the submitter.
func (p *Pool) Submit(name string, task Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx := context.Background()
		// Acquire on a background context cannot fail.
		_ = p.sem.Acquire(ctx, 1)
		defer p.sem.Release(1)

		if err := p.run(ctx, task); err != nil {
			p.logger.Error("background task failed", "task", name, "error", err)
			return
		}
		p.logger.Debug("background task finished", "task", name)
	}()
}

func (p *Pool) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}

// Wait blocks until every submitted task has finished or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
